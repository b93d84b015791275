package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/record"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
	"github.com/sumitkushwahji/time-traceability-backend/internal/retry"
)

// EventPublisher delivers a JSON payload under a topic relative to the
// configured prefix.
type EventPublisher interface {
	PublishJSON(ctx context.Context, subtopic string, v any) error
}

type Options struct {
	Root              string
	MissingWindowDays int
	Retry             retry.Policy
	Metrics           *metrics.Collector
	Publisher         EventPublisher
	Logger            *slog.Logger
	Now               func() time.Time
}

// PassSummary is what one RunPass did.
type PassSummary struct {
	ID       string
	Scan     ScanResult
	Missing  map[string][]int
	Duration time.Duration
	Err      error
}

type Service struct {
	monitor   *Monitor
	detector  *Detector
	publisher EventPublisher
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo repository.IngestRepository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	writer := NewAvailabilityWriter(repo, opts.Retry, opts.Metrics, logger)
	ingester := NewIngester(repo, opts.Metrics, logger)
	return &Service{
		monitor:   NewMonitor(opts.Root, writer, ingester, opts.Metrics, logger, now),
		detector:  NewDetector(writer, opts.MissingWindowDays, logger, now),
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
	}
}

// RunPass scans the data root, records missing days and publishes one
// availability event per station seen. Failures are logged, never returned.
func (s *Service) RunPass(ctx context.Context) PassSummary {
	start := s.now()
	sum := PassSummary{ID: uuid.NewString()}
	logger := s.logger.With("pass_id", sum.ID)

	defer func() {
		sum.Duration = s.now().Sub(start)
		s.metrics.ObservePass(sum.Duration)
	}()

	scan, err := s.monitor.Scan(ctx)
	sum.Scan = scan
	if err != nil {
		sum.Err = err
		logger.Error("monitor pass failed", "error", err)
		return sum
	}

	today := record.DayIndex(s.now())
	missing, err := s.detector.Detect(ctx, scan.Observed, today)
	sum.Missing = missing
	if err != nil {
		sum.Err = err
		logger.Error("missing-day detection failed", "error", err)
	}
	total := 0
	for _, days := range missing {
		total += len(days)
	}
	s.metrics.AddMissingDays(total)

	s.publish(ctx, logger, sum.ID, today, scan.Observed, missing)

	logger.Info("monitor pass complete",
		"directories", scan.Directories,
		"files", scan.Files,
		"ignored", scan.Ignored,
		"errors", scan.Errors,
		"inserted", scan.Lines.Inserted,
		"duplicates", scan.Lines.Duplicates,
		"skipped", scan.Lines.Skipped,
		"failed", scan.Lines.Failed,
		"missing_days", total,
		"read", humanize.Bytes(uint64(scan.Lines.Bytes)),
		"duration", s.now().Sub(start),
	)
	return sum
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, passID string, today int, observed Observed, missing map[string][]int) {
	if s.publisher == nil {
		return
	}
	checkedAt := s.now()
	for station, days := range observed {
		ev := types.AvailabilityEvent{
			Station:   station,
			PassID:    passID,
			Day:       today,
			Available: sortedDays(days),
			Missing:   missing[station],
			CheckedAt: checkedAt,
		}
		if ev.Missing == nil {
			ev.Missing = []int{}
		}
		if err := s.publisher.PublishJSON(ctx, station+"/availability", ev); err != nil {
			logger.Warn("publish availability event failed", "station", station, "error", err)
		}
	}
}

func sortedDays(days map[int]struct{}) []int {
	out := make([]int, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
