package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/record"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
)

// HeaderLines is the fixed header length of a station data file.
const HeaderLines = 20

// FileResult summarizes one incremental read of a data file. From and To are
// the half-open line range examined.
type FileResult struct {
	Inserted   int
	Duplicates int
	Skipped    int
	Failed     int
	From       int
	To         int
	Bytes      int64
	// NoData is set when the file has not grown past its header yet.
	NoData bool
	// Pending is set when an unterminated last line was left for a later pass.
	Pending bool
}

func (r *FileResult) add(o FileResult) {
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Bytes += o.Bytes
}

// Ingester reads new lines of data files past their stored checkpoint.
type Ingester struct {
	repo    repository.IngestRepository
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngester(repo repository.IngestRepository, m *metrics.Collector, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{repo: repo, metrics: m, logger: logger, now: time.Now}
}

// IngestFile parses the lines of path not yet seen and stores them under
// station. The checkpoint only moves forward, and only after the lines up to
// it have been examined. An unterminated last line in a file for the current
// day or later may still be growing, so it is neither read nor counted.
func (g *Ingester) IngestFile(ctx context.Context, path string, key record.FileKey) (FileResult, error) {
	logger := g.logger.With("path", path, "station", key.Station, "day", key.Day)

	b, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	lines, terminated := record.DecodeLines(b)
	res := FileResult{Bytes: int64(len(b))}

	if !terminated && key.Day >= record.DayIndex(g.now()) {
		lines = lines[:len(lines)-1]
		res.Pending = true
	}

	if len(lines) < HeaderLines {
		logger.Debug("no data yet", "lines", len(lines), "pending", res.Pending)
		res.NoData = true
		return res, nil
	}

	start, _, err := g.repo.GetCheckpoint(ctx, path)
	if err != nil {
		return res, err
	}
	if start < HeaderLines {
		start = HeaderLines
	}
	res.From, res.To = start, len(lines)

	for i := start; i < len(lines); i++ {
		if err := ctx.Err(); err != nil {
			// checkpoint stays where it was; the remaining lines are read next pass
			return res, err
		}
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			res.Skipped++
			continue
		}

		m, err := record.ParseLine(line)
		if err != nil {
			res.Skipped++
			var le *record.LineError
			if errors.Is(err, record.ErrShortLine) || errors.As(err, &le) {
				logger.Warn("skipping malformed line", "line_no", i+1, "line", line, "error", err)
			} else {
				logger.Warn("skipping line", "line_no", i+1, "error", err)
			}
			continue
		}
		m.Source = key.Station

		inserted, err := g.repo.InsertMeasurement(ctx, m)
		switch {
		case err != nil:
			res.Failed++
			logger.Error("store measurement failed", "line_no", i+1, "error", err)
		case inserted:
			res.Inserted++
		default:
			res.Duplicates++
		}
	}

	if start < len(lines) {
		if err := g.repo.AdvanceCheckpoint(ctx, path, len(lines)); err != nil {
			return res, err
		}
	}

	g.metrics.AddLines("inserted", res.Inserted)
	g.metrics.AddLines("duplicate", res.Duplicates)
	g.metrics.AddLines("skipped", res.Skipped)
	g.metrics.AddLines("failed", res.Failed)

	if res.Pending {
		logger.Debug("unterminated last line held back", "line_no", len(lines)+1)
	}
	if res.To > res.From {
		logger.Info("file ingested",
			"from", res.From,
			"to", res.To,
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}
