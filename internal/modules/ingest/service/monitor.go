package service

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/record"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

// Observed maps station code to the set of days a file was seen for.
type Observed map[string]map[int]struct{}

func (o Observed) add(station string, day int) {
	days, ok := o[station]
	if !ok {
		days = make(map[int]struct{})
		o[station] = days
	}
	days[day] = struct{}{}
}

// ScanResult summarizes one walk of the data root.
type ScanResult struct {
	Directories int
	Files       int
	Ignored     int
	Errors      int
	Lines       FileResult
	Observed    Observed
}

// Monitor walks the data root. Every first-level directory is one feed;
// files below it are found recursively and attributed to the station named
// in the file name.
type Monitor struct {
	root     string
	writer   *AvailabilityWriter
	ingester *Ingester
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

func NewMonitor(root string, writer *AvailabilityWriter, ingester *Ingester, m *metrics.Collector, logger *slog.Logger, now func() time.Time) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{root: root, writer: writer, ingester: ingester, metrics: m, logger: logger, now: now}
}

// Scan processes feed directories one after another. Only an unreadable root
// fails the scan; problems with single files or directories are logged.
func (m *Monitor) Scan(ctx context.Context) (ScanResult, error) {
	res := ScanResult{Observed: make(Observed)}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return res, fmt.Errorf("read data root %s: %w", m.root, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !entry.IsDir() {
			continue
		}
		res.Directories++
		m.scanDir(ctx, filepath.Join(m.root, entry.Name()), &res)
	}
	return res, nil
}

func (m *Monitor) scanDir(ctx context.Context, dir string, res *ScanResult) {
	logger := m.logger.With("dir", dir)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			res.Errors++
			logger.Warn("walk entry failed", "path", path, "error", err)
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.Errors++
			logger.Warn("stat file failed", "path", path, "error", err)
			return nil
		}
		if info.Size() == 0 {
			return nil
		}

		key, ok := record.ParseFilename(d.Name())
		if !ok {
			res.Ignored++
			logger.Debug("ignoring file with unrecognized name", "path", path)
			return nil
		}
		res.Files++
		m.metrics.IncFilesScanned()
		res.Observed.add(key.Station, key.Day)

		m.processFile(ctx, path, d.Name(), key, info.ModTime(), res)
		return nil
	})
	if err != nil {
		res.Errors++
		logger.Error("scan directory failed", "error", err)
	}
}

func (m *Monitor) processFile(ctx context.Context, path, name string, key record.FileKey, modTime time.Time, res *ScanResult) {
	rec := types.AvailabilityRecord{
		Source:      key.Station,
		MJD:         key.Day,
		Status:      types.StatusAvailable,
		FileName:    &name,
		LastChecked: m.now(),
	}
	if !modTime.IsZero() {
		rec.FileCreationTime = &modTime
	}
	if err := m.writer.MarkAvailable(ctx, rec); err != nil {
		res.Errors++
		m.logger.Error("record availability failed", "path", path, "station", key.Station, "day", key.Day, "error", err)
	}

	fr, err := m.ingester.IngestFile(ctx, path, key)
	res.Lines.add(fr)
	if err != nil {
		res.Errors++
		m.logger.Error("ingest file failed", "path", path, "error", err)
	}
}
