package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/migrate"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if err := migrate.Run(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newRepo(t *testing.T) (IngestRepository, *sql.DB) {
	t.Helper()
	conn := setupTestDB(t)
	return NewRepository(conn, db.SQLite), conn
}

func sampleMeasurement(source string, sat int, sttime string) types.Measurement {
	return types.Measurement{
		Sat: sat, SatToken: "G01", SatSystem: "G", CL: "L1", MJD: 60878, STTime: sttime,
		TRKL: 780, ELV: 45, AZTH: 90, REFSV: 123, SRSV: -456, REFSYS: 789, SRSYS: -12,
		DSG: 5, IOE: 10, ISG: 3, FR: 1, FRC: "L1C", CK: "LSC", Source: source,
	}
}

func TestCheckpoint_MissingThenAdvance(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, found, err := repo.GetCheckpoint(ctx, "/data/a/GZLMB160.878")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if found {
		t.Fatal("GetCheckpoint found = true on empty store")
	}

	if err := repo.AdvanceCheckpoint(ctx, "/data/a/GZLMB160.878", 25); err != nil {
		t.Fatalf("AdvanceCheckpoint: %v", err)
	}
	got, found, err := repo.GetCheckpoint(ctx, "/data/a/GZLMB160.878")
	if err != nil || !found || got != 25 {
		t.Fatalf("GetCheckpoint = (%d, %v, %v), want (25, true, nil)", got, found, err)
	}
}

func TestCheckpoint_NeverMovesBackward(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	const path = "/data/a/GZLMB160.878"

	for _, offset := range []int{30, 22, 30, 45, 40} {
		if err := repo.AdvanceCheckpoint(ctx, path, offset); err != nil {
			t.Fatalf("AdvanceCheckpoint(%d): %v", offset, err)
		}
	}
	got, _, err := repo.GetCheckpoint(ctx, path)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got != 45 {
		t.Errorf("checkpoint = %d, want 45", got)
	}
}

func TestUpsertAvailability_LastWriteWins(t *testing.T) {
	repo, conn := newRepo(t)
	ctx := context.Background()

	first := "GZLMB160.878"
	second := "GZLMB160.878.bak"
	created := time.Date(2025, 7, 22, 1, 0, 0, 0, time.UTC)
	checked := time.Date(2025, 7, 22, 2, 0, 0, 0, time.UTC)

	if err := repo.UpsertAvailability(ctx, types.AvailabilityRecord{
		Source: "GZLMB1", MJD: 60878, Status: types.StatusAvailable,
		FileName: &first, FileCreationTime: &created, LastChecked: checked,
	}); err != nil {
		t.Fatalf("UpsertAvailability: %v", err)
	}
	if err := repo.UpsertAvailability(ctx, types.AvailabilityRecord{
		Source: "GZLMB1", MJD: 60878, Status: types.StatusAvailable,
		FileName: &second, LastChecked: checked.Add(time.Hour),
	}); err != nil {
		t.Fatalf("second UpsertAvailability: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM file_availability`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	recs, err := repo.FindAvailability(ctx, types.AvailabilityFilter{FromMJD: 60878, ToMJD: 60878})
	if err != nil {
		t.Fatalf("FindAvailability: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("FindAvailability len = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.FileName == nil || *rec.FileName != second {
		t.Errorf("FileName = %v, want %q", rec.FileName, second)
	}
	if rec.FileCreationTime != nil {
		t.Errorf("FileCreationTime = %v, want nil after overwrite", rec.FileCreationTime)
	}
	if !rec.LastChecked.Equal(checked.Add(time.Hour)) {
		t.Errorf("LastChecked = %v, want %v", rec.LastChecked, checked.Add(time.Hour))
	}
}

func TestInsertMissing_LeavesExistingRecords(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	name := "GZLMB160.878"
	if err := repo.UpsertAvailability(ctx, types.AvailabilityRecord{
		Source: "GZLMB1", MJD: 60878, Status: types.StatusAvailable, FileName: &name, LastChecked: now,
	}); err != nil {
		t.Fatalf("UpsertAvailability: %v", err)
	}

	inserted, err := repo.InsertMissing(ctx, "GZLMB1", 60878, now)
	if err != nil {
		t.Fatalf("InsertMissing existing: %v", err)
	}
	if inserted {
		t.Error("InsertMissing over AVAILABLE reported inserted")
	}

	inserted, err = repo.InsertMissing(ctx, "GZLMB1", 60877, now)
	if err != nil || !inserted {
		t.Fatalf("InsertMissing new = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = repo.InsertMissing(ctx, "GZLMB1", 60877, now)
	if err != nil || inserted {
		t.Fatalf("InsertMissing repeat = (%v, %v), want (false, nil)", inserted, err)
	}

	recs, err := repo.FindAvailability(ctx, types.AvailabilityFilter{Sources: []string{"GZLMB1"}, FromMJD: 60870, ToMJD: 60880})
	if err != nil {
		t.Fatalf("FindAvailability: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].MJD != 60877 || recs[0].Status != types.StatusMissing || recs[0].FileName != nil {
		t.Errorf("first = %+v, want MISSING 60877 without file", recs[0])
	}
	if recs[1].MJD != 60878 || recs[1].Status != types.StatusAvailable {
		t.Errorf("second = %+v, want AVAILABLE 60878", recs[1])
	}
}

func TestFindAvailability_FiltersSources(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	now := time.Now()
	for _, src := range []string{"IRNPLI", "GZLMB1", "GZLI2P"} {
		if _, err := repo.InsertMissing(ctx, src, 60878, now); err != nil {
			t.Fatalf("InsertMissing %s: %v", src, err)
		}
	}

	recs, err := repo.FindAvailability(ctx, types.AvailabilityFilter{Sources: []string{"IRNPLI", "GZLMB1"}, FromMJD: 60800, ToMJD: 60900})
	if err != nil {
		t.Fatalf("FindAvailability: %v", err)
	}
	if len(recs) != 2 || recs[0].Source != "GZLMB1" || recs[1].Source != "IRNPLI" {
		t.Errorf("FindAvailability = %+v, want GZLMB1 then IRNPLI", recs)
	}
}

func TestInsertMeasurement_Duplicate(t *testing.T) {
	repo, conn := newRepo(t)
	ctx := context.Background()
	m := sampleMeasurement("GZLMB1", 1, "120000")

	inserted, err := repo.InsertMeasurement(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("InsertMeasurement = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = repo.InsertMeasurement(ctx, m)
	if err != nil {
		t.Fatalf("duplicate InsertMeasurement error = %v, want nil", err)
	}
	if inserted {
		t.Error("duplicate InsertMeasurement reported inserted")
	}

	other := sampleMeasurement("IRNPLI", 1, "120000")
	if inserted, err := repo.InsertMeasurement(ctx, other); err != nil || !inserted {
		t.Fatalf("InsertMeasurement other station = (%v, %v)", inserted, err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestFindMeasurements(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ion := "MSIO"
	rows := []types.Measurement{
		sampleMeasurement("GZLMB1", 1, "120000"),
		sampleMeasurement("GZLMB1", 2, "120000"),
		sampleMeasurement("IRNPLI", 1, "121600"),
	}
	rows[2].IonType = &ion
	for _, m := range rows {
		if _, err := repo.InsertMeasurement(ctx, m); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}

	sat := 1
	from, to := 60878, 60878
	tests := []struct {
		name   string
		filter types.MeasurementFilter
		want   int
	}{
		{name: "all", filter: types.MeasurementFilter{}, want: 3},
		{name: "by source", filter: types.MeasurementFilter{Sources: []string{"IRNPLI"}}, want: 1},
		{name: "by satellite", filter: types.MeasurementFilter{Sat: &sat}, want: 2},
		{name: "by day range", filter: types.MeasurementFilter{FromMJD: &from, ToMJD: &to}, want: 3},
		{name: "limit", filter: types.MeasurementFilter{Limit: 2}, want: 2},
		{name: "offset", filter: types.MeasurementFilter{Offset: 2}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindMeasurements(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FindMeasurements: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("FindMeasurements len = %d, want %d", len(got), tt.want)
			}
		})
	}

	got, err := repo.FindMeasurements(ctx, types.MeasurementFilter{Sources: []string{"IRNPLI"}})
	if err != nil {
		t.Fatalf("FindMeasurements: %v", err)
	}
	if got[0].IonType == nil || *got[0].IonType != ion || got[0].SRSV != -456 {
		t.Errorf("round trip = %+v", got[0])
	}
}
