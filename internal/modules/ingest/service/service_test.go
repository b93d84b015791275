package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/record"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]byte
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, subtopic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.events == nil {
		p.events = make(map[string][]byte)
	}
	p.events[subtopic] = b
	return nil
}

func TestRunPass_EndToEnd(t *testing.T) {
	root := t.TempDir()
	repo, conn := newTestRepo(t)

	now := time.Date(2025, 7, 22, 12, 0, 0, 0, time.Local)
	today := record.DayIndex(now)
	lines := append(headerLines(), dataLines(4, 0)...)
	writeLines(t, filepath.Join(root, "feed", "GZLMB160.875"), lines)
	writeLines(t, filepath.Join(root, "feed", "GZLMB160.877"), lines)

	pub := &recordingPublisher{}
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	h := &captureHandler{}
	svc := NewService(repo, Options{
		Root:              root,
		MissingWindowDays: 3,
		Retry:             fastPolicy,
		Metrics:           m,
		Publisher:         pub,
		Logger:            slog.New(h),
		Now:               func() time.Time { return now },
	})

	sum := svc.RunPass(context.Background())
	if sum.Err != nil {
		t.Fatalf("RunPass error = %v", sum.Err)
	}
	if sum.ID == "" {
		t.Error("pass id empty")
	}
	if want := map[string][]int{"GZLMB1": {today - 2, today}}; !reflect.DeepEqual(sum.Missing, want) {
		t.Errorf("Missing = %v, want %v", sum.Missing, want)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM file_availability WHERE status = 'MISSING'`); n != 2 {
		t.Errorf("MISSING rows = %d, want 2", n)
	}
	if got := testutil.ToFloat64(m.MissingDays); got != 2 {
		t.Errorf("missing days metric = %v, want 2", got)
	}
	if len(h.find("monitor pass complete")) != 1 {
		t.Error("missing pass summary log")
	}

	raw, ok := pub.events["GZLMB1/availability"]
	if !ok {
		t.Fatalf("no event published, got %v", pub.events)
	}
	var ev types.AvailabilityEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Station != "GZLMB1" || ev.Day != today || ev.PassID != sum.ID {
		t.Errorf("event = %+v", ev)
	}
	if want := []int{today - 3, today - 1}; !reflect.DeepEqual(ev.Available, want) {
		t.Errorf("event available = %v, want %v", ev.Available, want)
	}
}

func TestRunPass_RootMissingLogsAndSkipsDetection(t *testing.T) {
	repo, conn := newTestRepo(t)
	h := &captureHandler{}
	svc := NewService(repo, Options{
		Root:              filepath.Join(t.TempDir(), "absent"),
		MissingWindowDays: 3,
		Retry:             fastPolicy,
		Logger:            slog.New(h),
	})

	sum := svc.RunPass(context.Background())
	if sum.Err == nil {
		t.Fatal("Err = nil, want root error")
	}
	if len(h.find("monitor pass failed")) != 1 {
		t.Error("missing failure log")
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM file_availability`); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestRunPass_PublishFailureIsLogged(t *testing.T) {
	root := t.TempDir()
	repo, _ := newTestRepo(t)
	writeLines(t, filepath.Join(root, "feed", "GZLMB160.878"), headerLines())

	h := &captureHandler{}
	svc := NewService(repo, Options{
		Root:      root,
		Retry:     fastPolicy,
		Publisher: &recordingPublisher{err: errors.New("broker down")},
		Logger:    slog.New(h),
	})
	if sum := svc.RunPass(context.Background()); sum.Err != nil {
		t.Fatalf("RunPass error = %v", sum.Err)
	}
	if len(h.find("publish availability event failed")) != 1 {
		t.Error("missing publish warning")
	}
}
