package controller

import (
	"log/slog"
	"net/http"

	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/record"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
	"github.com/sumitkushwahji/time-traceability-backend/internal/utils"
)

func (c *ingestControllerImpl) handleFileAvailability(w http.ResponseWriter, r *http.Request) {
	q, err := parseAvailabilityQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := c.repository.FindAvailability(r.Context(), types.AvailabilityFilter{
		Sources: q.Sources,
		FromMJD: record.DayIndex(q.StartDate),
		ToMJD:   record.DayIndex(q.EndDate),
	})
	if err != nil {
		slog.Error("file availability: query failed", "sources", q.Sources, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load file availability")
		return
	}
	if recs == nil {
		recs = []types.AvailabilityRecord{}
	}
	utils.WriteJSON(w, http.StatusOK, recs)
}

func (c *ingestControllerImpl) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMeasurementsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := c.repository.FindMeasurements(r.Context(), filter)
	if err != nil {
		slog.Error("measurements: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}
	if rows == nil {
		rows = []types.Measurement{}
	}
	utils.WriteJSON(w, http.StatusOK, rows)
}
