package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the ingest and refresh metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	FilesScanned       prometheus.Counter
	Lines              *prometheus.CounterVec
	AvailabilityWrites *prometheus.CounterVec
	UpsertRetries      prometheus.Counter
	MissingDays        prometheus.Counter
	PassDuration       prometheus.Histogram

	RefreshDuration *prometheus.HistogramVec
	RefreshResults  *prometheus.CounterVec
	RefreshDropped  *prometheus.CounterVec
	RefreshRunning  prometheus.Gauge
}

// NewCollector registers all metrics against reg (default registerer when nil).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.FilesScanned, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_files_scanned_total",
		Help: "Station data files recognized by the folder monitor.",
	})); err != nil {
		return nil, err
	}
	if c.Lines, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_lines_total",
		Help: "Data lines examined by the incremental parser, by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.AvailabilityWrites, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_availability_writes_total",
		Help: "Availability record writes, by status and outcome.",
	}, []string{"status", "outcome"})); err != nil {
		return nil, err
	}
	if c.UpsertRetries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_availability_retries_total",
		Help: "Availability writes retried after lock or serialization contention.",
	})); err != nil {
		return nil, err
	}
	if c.MissingDays, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_missing_days_total",
		Help: "Station days recorded as MISSING by the detector.",
	})); err != nil {
		return nil, err
	}
	if c.PassDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_pass_duration_seconds",
		Help:    "Duration of a full monitor pass including missing-day detection.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})); err != nil {
		return nil, err
	}
	if c.RefreshDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refresh_view_duration_seconds",
		Help:    "Duration of one aggregate view rebuild.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"view"})); err != nil {
		return nil, err
	}
	if c.RefreshResults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_view_total",
		Help: "Aggregate view refreshes, by view and status.",
	}, []string{"view", "status"})); err != nil {
		return nil, err
	}
	if c.RefreshDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_triggers_dropped_total",
		Help: "Refresh triggers dropped because a cycle was already running.",
	}, []string{"trigger"})); err != nil {
		return nil, err
	}
	if c.RefreshRunning, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "refresh_cycle_running",
		Help: "1 while a refresh cycle is in progress.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes the collector's gatherer in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) IncFilesScanned() {
	if c == nil {
		return
	}
	c.FilesScanned.Inc()
}

func (c *Collector) AddLines(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Lines.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collector) IncAvailabilityWrite(status, outcome string) {
	if c == nil {
		return
	}
	c.AvailabilityWrites.WithLabelValues(status, outcome).Inc()
}

func (c *Collector) IncUpsertRetries() {
	if c == nil {
		return
	}
	c.UpsertRetries.Inc()
}

func (c *Collector) AddMissingDays(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.MissingDays.Add(float64(n))
}

func (c *Collector) ObservePass(d time.Duration) {
	if c == nil {
		return
	}
	c.PassDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveRefresh(view, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.RefreshDuration.WithLabelValues(view).Observe(d.Seconds())
	c.RefreshResults.WithLabelValues(view, status).Inc()
}

func (c *Collector) IncRefreshDropped(trigger string) {
	if c == nil {
		return
	}
	c.RefreshDropped.WithLabelValues(trigger).Inc()
}

func (c *Collector) SetRefreshRunning(running bool) {
	if c == nil {
		return
	}
	if running {
		c.RefreshRunning.Set(1)
		return
	}
	c.RefreshRunning.Set(0)
}

// register adds col to reg, reusing an identical collector already registered
// under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
