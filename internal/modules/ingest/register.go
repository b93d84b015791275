package ingest

import (
	"database/sql"
	"net/http"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/controller"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/service"
)

func RegisterFeature(mux *http.ServeMux, conn *sql.DB, dialect db.Dialect, opts service.Options) *service.Service {
	ingestRepository := repository.NewRepository(conn, dialect)
	controller.NewIngestController(ingestRepository).RegisterRoutes(mux)
	return service.NewService(ingestRepository, opts)
}
