package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

//go:embed sql/get-checkpoint.sql
var getCheckpointSQL string

//go:embed sql/advance-checkpoint.sql
var advanceCheckpointSQL string

//go:embed sql/upsert-availability.sql
var upsertAvailabilitySQL string

//go:embed sql/insert-missing.sql
var insertMissingSQL string

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/find-availability.sql
var findAvailabilitySQL string

//go:embed sql/find-measurements.sql
var findMeasurementsSQL string

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type IngestRepository interface {
	GetCheckpoint(ctx context.Context, path string) (offset int, found bool, err error)
	AdvanceCheckpoint(ctx context.Context, path string, offset int) error

	UpsertAvailability(ctx context.Context, rec types.AvailabilityRecord) error
	InsertMissing(ctx context.Context, station string, day int, checkedAt time.Time) (bool, error)
	FindAvailability(ctx context.Context, f types.AvailabilityFilter) ([]types.AvailabilityRecord, error)

	InsertMeasurement(ctx context.Context, m types.Measurement) (bool, error)
	FindMeasurements(ctx context.Context, f types.MeasurementFilter) ([]types.Measurement, error)
}

type repositoryImpl struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewRepository(conn *sql.DB, dialect db.Dialect) IngestRepository {
	return &repositoryImpl{conn: conn, dialect: dialect}
}

func (r *repositoryImpl) GetCheckpoint(ctx context.Context, path string) (int, bool, error) {
	var offset int
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(getCheckpointSQL), path).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint %q: %w", path, err)
	}
	return offset, true, nil
}

// AdvanceCheckpoint stores offset for path unless a larger one is already stored.
func (r *repositoryImpl) AdvanceCheckpoint(ctx context.Context, path string, offset int) error {
	if _, err := r.conn.ExecContext(ctx, r.dialect.Rebind(advanceCheckpointSQL), path, offset, time.Now()); err != nil {
		return fmt.Errorf("advance checkpoint %q to %d: %w", path, offset, err)
	}
	return nil
}

func (r *repositoryImpl) UpsertAvailability(ctx context.Context, rec types.AvailabilityRecord) error {
	var creation any
	if rec.FileCreationTime != nil {
		creation = *rec.FileCreationTime
	}
	var fileName any
	if rec.FileName != nil {
		fileName = *rec.FileName
	}
	_, err := r.conn.ExecContext(ctx, r.dialect.Rebind(upsertAvailabilitySQL),
		rec.Source, rec.MJD, string(rec.Status), fileName, creation, rec.LastChecked)
	if err != nil {
		return fmt.Errorf("upsert availability %s/%d: %w", rec.Source, rec.MJD, err)
	}
	return nil
}

// InsertMissing records a MISSING day unless any record exists for it.
func (r *repositoryImpl) InsertMissing(ctx context.Context, station string, day int, checkedAt time.Time) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.dialect.Rebind(insertMissingSQL), station, day, checkedAt)
	if err != nil {
		return false, fmt.Errorf("insert missing %s/%d: %w", station, day, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert missing %s/%d: rows affected: %w", station, day, err)
	}
	return n > 0, nil
}

func (r *repositoryImpl) FindAvailability(ctx context.Context, f types.AvailabilityFilter) ([]types.AvailabilityRecord, error) {
	var q strings.Builder
	q.WriteString(findAvailabilitySQL)
	args := []any{f.FromMJD, f.ToMJD}
	if len(f.Sources) > 0 {
		fmt.Fprintf(&q, " AND source IN (%s)", db.Placeholders(len(f.Sources)))
		for _, s := range f.Sources {
			args = append(args, s)
		}
	}
	q.WriteString(" ORDER BY source, mjd")

	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("find availability: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close availability rows", "error", err)
		}
	}()

	var out []types.AvailabilityRecord
	for rows.Next() {
		var rec types.AvailabilityRecord
		var status string
		var fileName sql.NullString
		var creation sql.NullTime
		if err := rows.Scan(&rec.Source, &rec.MJD, &status, &fileName, &creation, &rec.LastChecked); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		rec.Status = types.Status(status)
		if fileName.Valid {
			rec.FileName = &fileName.String
		}
		if creation.Valid {
			rec.FileCreationTime = &creation.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertMeasurement reports false for a row already stored under the same
// (sat, mjd, sttime, source).
func (r *repositoryImpl) InsertMeasurement(ctx context.Context, m types.Measurement) (bool, error) {
	var ion any
	if m.IonType != nil {
		ion = *m.IonType
	}
	res, err := r.conn.ExecContext(ctx, r.dialect.Rebind(insertMeasurementSQL),
		m.Sat, m.SatToken, m.SatSystem, m.CL, m.MJD, m.STTime, m.TRKL, m.ELV, m.AZTH,
		m.REFSV, m.SRSV, m.REFSYS, m.SRSYS, m.DSG, m.IOE,
		m.MDTR, m.SMDT, m.MDIO, m.SMDI, m.MSIO, m.SMSI,
		m.ISG, m.FR, m.HC, m.FRC, m.CK, ion, m.Source,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert measurement %s sat %d day %d sttime %s: %w", m.Source, m.Sat, m.MJD, m.STTime, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert measurement: rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *repositoryImpl) FindMeasurements(ctx context.Context, f types.MeasurementFilter) ([]types.Measurement, error) {
	var q strings.Builder
	q.WriteString(findMeasurementsSQL)
	var args []any
	if len(f.Sources) > 0 {
		fmt.Fprintf(&q, " AND source IN (%s)", db.Placeholders(len(f.Sources)))
		for _, s := range f.Sources {
			args = append(args, s)
		}
	}
	if f.FromMJD != nil {
		q.WriteString(" AND mjd >= ?")
		args = append(args, *f.FromMJD)
	}
	if f.ToMJD != nil {
		q.WriteString(" AND mjd <= ?")
		args = append(args, *f.ToMJD)
	}
	if f.Sat != nil {
		q.WriteString(" AND sat = ?")
		args = append(args, *f.Sat)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q.WriteString(" ORDER BY mjd, sttime, source, sat LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("find measurements: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measurement rows", "error", err)
		}
	}()

	var out []types.Measurement
	for rows.Next() {
		var m types.Measurement
		var ion sql.NullString
		if err := rows.Scan(
			&m.Sat, &m.SatToken, &m.SatSystem, &m.CL, &m.MJD, &m.STTime, &m.TRKL, &m.ELV, &m.AZTH,
			&m.REFSV, &m.SRSV, &m.REFSYS, &m.SRSYS, &m.DSG, &m.IOE,
			&m.MDTR, &m.SMDT, &m.MDIO, &m.SMDI, &m.MSIO, &m.SMSI,
			&m.ISG, &m.FR, &m.HC, &m.FRC, &m.CK, &ion, &m.Source,
		); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		if ion.Valid {
			m.IonType = &ion.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
