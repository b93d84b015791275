package refresh

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/controller"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/service"
)

func RegisterFeature(mux *http.ServeMux, conn *sql.DB, dialect db.Dialect, views []string, m *metrics.Collector, logger *slog.Logger) *service.Coordinator {
	store := repository.NewViewStore(conn, dialect, logger)
	coordinator := service.NewCoordinator(store, views, m, logger)
	controller.NewSchedulerController(coordinator).RegisterRoutes(mux)
	return coordinator
}
