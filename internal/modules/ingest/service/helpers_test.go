package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/migrate"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/retry"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := capturedRecord{level: r.Level, msg: r.Message, attrs: make(map[string]slog.Value)}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value
		return true
	})
	h.records = append(h.records, rec)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) find(msg string) []capturedRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []capturedRecord
	for _, r := range h.records {
		if r.msg == msg {
			out = append(out, r)
		}
	}
	return out
}

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

func newTestRepo(t *testing.T) (repository.IngestRepository, *sql.DB) {
	t.Helper()
	conn := setupTestDB(t)
	return repository.NewRepository(conn, db.SQLite), conn
}

var fastPolicy = retry.Policy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond}

func headerLines() []string {
	lines := make([]string, 0, HeaderLines)
	lines = append(lines, "CGGTTS     GENERIC DATA FORMAT VERSION = 2E")
	for i := 1; i < HeaderLines-1; i++ {
		lines = append(lines, fmt.Sprintf("HEADER LINE %d", i))
	}
	return append(lines, "SAT CL  MJD  STTIME TRKL ELV AZTH   REFSV      SRSV  REFSYS    SRSYS DSG IOE MDTR SMDT MDIO SMDI MSIO SMSI ISG FR HC FRC CK")
}

func dataLine(sat, sttime int) string {
	return fmt.Sprintf("G%02d L1 60878 %06d 780 45 90 +123 -456 +789 -012 5 10 1 1 1 1 1 1 3 1 0 L1C LSC", sat, sttime)
}

func dataLines(n, startTime int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = dataLine(i%32+1, startTime+i*100)
	}
	return out
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func countRows(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
