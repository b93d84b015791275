// Package scheduler runs the periodic monitor pass and view refresh jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one unit of periodic work. ctx is cancelled by Stop.
type Job func(ctx context.Context)

type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.Local),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Overlap decides what a tick does while the previous run of the same job is
// still going.
type Overlap int

const (
	// OverlapAllow starts every tick on its own goroutine. The job is its own
	// gate and drops what it cannot run.
	OverlapAllow Overlap = iota
	// OverlapSkip drops a tick that finds the previous run still going.
	OverlapSkip
)

// Every registers job to run once at start and then every interval. Ticks
// are never queued; overlap decides whether they run concurrently or are
// dropped.
func (s *Scheduler) Every(name string, interval time.Duration, overlap Overlap, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0, got %s", name, interval)
	}
	var running atomic.Bool
	_, err := s.scheduler.Every(interval).Do(func() {
		if s.ctx.Err() != nil {
			return
		}
		if overlap == OverlapSkip {
			if !running.CompareAndSwap(false, true) {
				s.logger.Warn("previous run still in progress, tick skipped", "job", name)
				return
			}
			defer running.Store(false)
		}
		start := time.Now()
		s.logger.Debug("scheduled job started", "job", name)
		job(s.ctx)
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", "job", name, "interval", interval)
	return nil
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop cancels the context handed to running jobs and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
