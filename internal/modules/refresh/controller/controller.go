package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/types"
	"github.com/sumitkushwahji/time-traceability-backend/internal/utils"
)

// Refresher is the part of the coordinator the HTTP API needs.
type Refresher interface {
	Trigger(ctx context.Context) bool
	Statuses() map[string]types.ViewStatus
	Health() types.Health
}

type SchedulerController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type schedulerControllerImpl struct {
	refresher Refresher
}

func NewSchedulerController(refresher Refresher) SchedulerController {
	return &schedulerControllerImpl{refresher: refresher}
}

func (c *schedulerControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/scheduler/status", c.handleStatus)
	mux.HandleFunc("POST /api/scheduler/refresh", c.handleRefresh)
	mux.HandleFunc("GET /api/scheduler/health", c.handleHealth)
}

func (c *schedulerControllerImpl) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.refresher.Statuses())
}

func (c *schedulerControllerImpl) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !c.refresher.Trigger(r.Context()) {
		utils.WriteError(w, http.StatusConflict, "a refresh cycle is already running or no views are configured")
		return
	}
	slog.Info("manual refresh triggered", "remote", r.RemoteAddr)
	utils.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": "Manual refresh job triggered for all views. Check /api/scheduler/status for progress.",
	})
}

func (c *schedulerControllerImpl) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := c.refresher.Health()
	status := http.StatusOK
	if h.OverallStatus != "HEALTHY" {
		status = http.StatusServiceUnavailable
	}
	utils.WriteJSON(w, status, h)
}
