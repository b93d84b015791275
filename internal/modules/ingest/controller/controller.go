package controller

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
)

var validate = validator.New()

type IngestController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type ingestControllerImpl struct {
	repository repository.IngestRepository
}

func NewIngestController(repository repository.IngestRepository) IngestController {
	return &ingestControllerImpl{repository: repository}
}

func (c *ingestControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status/file-availability", c.handleFileAvailability)
	mux.HandleFunc("GET /api/measurements", c.handleMeasurements)
}
