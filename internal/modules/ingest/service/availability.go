package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
	"github.com/sumitkushwahji/time-traceability-backend/internal/retry"
)

// AvailabilityWriter writes availability records, retrying on lock or
// serialization contention. A write that exhausts its retry budget is logged
// and dropped; the next pass writes the same record again.
type AvailabilityWriter struct {
	repo    repository.IngestRepository
	policy  retry.Policy
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewAvailabilityWriter(repo repository.IngestRepository, policy retry.Policy, m *metrics.Collector, logger *slog.Logger) *AvailabilityWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityWriter{repo: repo, policy: policy, metrics: m, logger: logger}
}

func (w *AvailabilityWriter) MarkAvailable(ctx context.Context, rec types.AvailabilityRecord) error {
	rec.Status = types.StatusAvailable
	return w.write(ctx, rec.Status, rec.Source, rec.MJD, func(ctx context.Context) error {
		return w.repo.UpsertAvailability(ctx, rec)
	})
}

// MarkMissing reports whether a MISSING record was created. Days that
// already have a record are left alone.
func (w *AvailabilityWriter) MarkMissing(ctx context.Context, station string, day int, checkedAt time.Time) (bool, error) {
	var inserted bool
	err := w.write(ctx, types.StatusMissing, station, day, func(ctx context.Context) error {
		var err error
		inserted, err = w.repo.InsertMissing(ctx, station, day, checkedAt)
		return err
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (w *AvailabilityWriter) write(ctx context.Context, status types.Status, station string, day int, op func(context.Context) error) error {
	policy := w.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		w.metrics.IncUpsertRetries()
		w.logger.Debug("availability write contended, retrying",
			"station", station,
			"day", day,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	err := retry.Do(ctx, policy, db.IsRetryable, op)
	switch {
	case err == nil:
		w.metrics.IncAvailabilityWrite(string(status), "ok")
		return nil
	case errors.Is(err, retry.ErrExhausted):
		w.metrics.IncAvailabilityWrite(string(status), "dropped")
		w.logger.Warn("availability write dropped after retries",
			"station", station,
			"day", day,
			"status", status,
			"error", err,
		)
		return nil
	default:
		w.metrics.IncAvailabilityWrite(string(status), "error")
		return err
	}
}
