package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh/types"
)

const (
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

// Coordinator refreshes the configured aggregate views in order. At most one
// cycle runs at a time; a trigger that finds a cycle running is dropped.
type Coordinator struct {
	views   []string
	store   repository.ViewStore
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu       sync.RWMutex
	statuses map[string]types.ViewStatus
}

func NewCoordinator(store repository.ViewStore, views []string, m *metrics.Collector, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		views:    append([]string(nil), views...),
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		statuses: make(map[string]types.ViewStatus, len(views)),
	}
}

// RunCycle refreshes every view on the calling goroutine. It returns false
// when the cycle was skipped. Cancelling ctx does not abort a cycle that has
// started.
func (c *Coordinator) RunCycle(ctx context.Context) bool {
	if !c.acquire(triggerScheduled) {
		return false
	}
	c.wg.Add(1)
	defer c.wg.Done()
	c.cycle(context.WithoutCancel(ctx), triggerScheduled)
	return true
}

// Trigger starts a cycle in the background and reports whether it was
// accepted.
func (c *Coordinator) Trigger(ctx context.Context) bool {
	if !c.acquire(triggerManual) {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.cycle(context.WithoutCancel(ctx), triggerManual)
	}()
	return true
}

// Wait blocks until every cycle that has started has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) Running() bool {
	return c.running.Load()
}

func (c *Coordinator) Views() []string {
	return append([]string(nil), c.views...)
}

// Statuses returns a copy of the last outcome per view. Views that were
// never refreshed are absent.
func (c *Coordinator) Statuses() map[string]types.ViewStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]types.ViewStatus, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// Healthy reports whether no view's last refresh failed.
func (c *Coordinator) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, st := range c.statuses {
		if st.LastRefreshStatus == types.StatusFailed {
			return false
		}
	}
	return true
}

// Health summarizes Statuses for every configured view.
func (c *Coordinator) Health() types.Health {
	statuses := c.Statuses()
	h := types.Health{OverallStatus: "HEALTHY", Views: make(map[string]string, len(c.views))}
	for _, v := range c.views {
		h.Views[v] = types.StatusPending
	}
	for name, st := range statuses {
		h.Views[name] = st.LastRefreshStatus
		if st.LastRefreshStatus == types.StatusFailed {
			h.OverallStatus = "UNHEALTHY"
		}
	}
	return h
}

// CheckViews logs whether each configured view exists and how many rows it
// holds. Problems are logged, never returned; the first refresh cycle reports
// a missing view as failed.
func (c *Coordinator) CheckViews(ctx context.Context) []types.ViewCheck {
	checks := make([]types.ViewCheck, 0, len(c.views))
	for _, view := range c.views {
		ch := types.ViewCheck{Name: view}
		ch.Exists, ch.Err = c.store.Exists(ctx, view)
		if ch.Err == nil && ch.Exists {
			ch.Rows, ch.Err = c.store.RowCount(ctx, view)
		}
		switch {
		case ch.Err != nil:
			c.logger.Error("aggregate view check failed", "view", view, "error", ch.Err)
		case !ch.Exists:
			c.logger.Error("aggregate view not found, run migrations to create it", "view", view)
		default:
			c.logger.Info("aggregate view ready", "view", view, "rows", ch.Rows)
		}
		checks = append(checks, ch)
	}
	return checks
}

func (c *Coordinator) acquire(trigger string) bool {
	if len(c.views) == 0 {
		c.logger.Warn("no aggregate views configured, refresh skipped", "trigger", trigger)
		return false
	}
	if !c.running.CompareAndSwap(false, true) {
		c.metrics.IncRefreshDropped(trigger)
		c.logger.Warn("refresh already running", "trigger", trigger)
		return false
	}
	c.metrics.SetRefreshRunning(true)
	return true
}

func (c *Coordinator) cycle(ctx context.Context, trigger string) {
	defer func() {
		c.metrics.SetRefreshRunning(false)
		c.running.Store(false)
	}()

	cycleID := uuid.NewString()
	logger := c.logger.With("cycle_id", cycleID, "trigger", trigger)
	logger.Info("refresh cycle started", "views", len(c.views))
	start := c.now()

	failed := 0
	for _, view := range c.views {
		st := c.refreshView(ctx, logger, view)
		if st.LastRefreshStatus == types.StatusFailed {
			failed++
		}
		c.mu.Lock()
		c.statuses[view] = st
		c.mu.Unlock()
	}

	logger.Info("refresh cycle finished",
		"views", len(c.views),
		"failed", failed,
		"duration", c.now().Sub(start),
	)
}

func (c *Coordinator) refreshView(ctx context.Context, logger *slog.Logger, view string) types.ViewStatus {
	start := c.now()
	err := c.rebuild(ctx, view)
	elapsed := c.now().Sub(start)

	st := types.ViewStatus{
		LastRefreshStatus:     types.StatusSuccess,
		LastRefreshDurationMs: elapsed.Milliseconds(),
		LastRefreshTimestamp:  c.now(),
	}
	if err != nil {
		st.LastRefreshStatus = types.StatusFailed
		st.Error = err.Error()
		logger.Error("view refresh failed", "view", view, "duration", elapsed, "error", err)
	} else {
		logger.Info("view refreshed", "view", view, "duration", elapsed)
	}
	c.metrics.ObserveRefresh(view, st.LastRefreshStatus, elapsed)
	return st
}

func (c *Coordinator) rebuild(ctx context.Context, view string) error {
	exists, err := c.store.Exists(ctx, view)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("materialized view %q does not exist", view)
	}
	if err := c.store.Rebuild(ctx, view); err != nil {
		return err
	}
	return c.store.Analyze(ctx, view)
}
