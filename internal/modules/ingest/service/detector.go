package service

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Detector records MISSING days for stations that were seen in a pass but
// have no file for some day in the trailing window.
type Detector struct {
	writer *AvailabilityWriter
	window int
	logger *slog.Logger
	now    func() time.Time
}

func NewDetector(writer *AvailabilityWriter, window int, logger *slog.Logger, now func() time.Time) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{writer: writer, window: window, logger: logger, now: now}
}

// Detect checks days today-window through today for each observed station and
// returns the days newly recorded as MISSING, per station.
func (d *Detector) Detect(ctx context.Context, observed Observed, today int) (map[string][]int, error) {
	missing := make(map[string][]int)
	checkedAt := d.now()

	stations := make([]string, 0, len(observed))
	for s := range observed {
		stations = append(stations, s)
	}
	sort.Strings(stations)

	for _, station := range stations {
		seen := observed[station]
		for day := today - d.window; day <= today; day++ {
			if err := ctx.Err(); err != nil {
				return missing, err
			}
			if _, ok := seen[day]; ok {
				continue
			}
			inserted, err := d.writer.MarkMissing(ctx, station, day, checkedAt)
			if err != nil {
				d.logger.Error("record missing day failed", "station", station, "day", day, "error", err)
				continue
			}
			if inserted {
				missing[station] = append(missing[station], day)
				d.logger.Info("day marked missing", "station", station, "day", day)
			}
		}
	}
	return missing, nil
}
