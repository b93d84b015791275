package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
)

//go:embed sql/pg-view-exists.sql
var pgViewExistsSQL string

//go:embed sql/pg-view-exists-in-schema.sql
var pgViewExistsInSchemaSQL string

//go:embed sql/sqlite-view-exists.sql
var sqliteViewExistsSQL string

//go:embed sql/sqlite-view-definition.sql
var sqliteViewDefinitionSQL string

var ErrUnknownView = errors.New("unknown aggregate view")

// ViewStore rebuilds derived aggregate views without blocking readers.
type ViewStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Rebuild(ctx context.Context, name string) error
	Analyze(ctx context.Context, name string) error
	RowCount(ctx context.Context, name string) (int64, error)
}

func NewViewStore(conn *sql.DB, dialect db.Dialect, logger *slog.Logger) ViewStore {
	if logger == nil {
		logger = slog.Default()
	}
	if dialect == db.Postgres {
		return &postgresViewStore{conn: conn, logger: logger}
	}
	return &sqliteViewStore{conn: conn}
}

// quoteIdent quotes each dot separated part of name.
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// postgresViewStore works on materialized views.
type postgresViewStore struct {
	conn   *sql.DB
	logger *slog.Logger
}

func (s *postgresViewStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	var err error
	if schema, view, ok := strings.Cut(name, "."); ok {
		err = s.conn.QueryRowContext(ctx, db.Postgres.Rebind(pgViewExistsInSchemaSQL), view, schema).Scan(&exists)
	} else {
		err = s.conn.QueryRowContext(ctx, db.Postgres.Rebind(pgViewExistsSQL), name).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("check view %s: %w", name, err)
	}
	return exists, nil
}

// Rebuild refreshes concurrently, so readers keep the old contents until the
// new ones are ready. A view that was never populated cannot be refreshed
// concurrently and gets one plain refresh instead.
func (s *postgresViewStore) Rebuild(ctx context.Context, name string) error {
	ident := quoteIdent(name)
	_, err := s.conn.ExecContext(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+ident)
	if err != nil && db.IsObjectNotInPrerequisiteState(err) {
		s.logger.Warn("concurrent refresh not possible, refreshing with lock", "view", name, "error", err)
		_, err = s.conn.ExecContext(ctx, "REFRESH MATERIALIZED VIEW "+ident)
	}
	if err != nil {
		return fmt.Errorf("refresh view %s: %w", name, err)
	}
	return nil
}

func (s *postgresViewStore) Analyze(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, "ANALYZE "+quoteIdent(name)); err != nil {
		return fmt.Errorf("analyze %s: %w", name, err)
	}
	return nil
}

// sqliteViewStore keeps aggregates as tables registered in aggregate_views
// and rebuilds them from the stored SELECT. In WAL mode readers keep seeing
// the previous contents until the rebuild commits.
type sqliteViewStore struct {
	conn *sql.DB
}

func (s *sqliteViewStore) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, sqliteViewExistsSQL, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check view %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *sqliteViewStore) Rebuild(ctx context.Context, name string) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuild %s: begin: %w", name, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("rollback view rebuild", "view", name, "error", rbErr)
			}
		}
	}()

	var definition string
	if err = tx.QueryRowContext(ctx, sqliteViewDefinitionSQL, name).Scan(&definition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rebuild %s: %w", name, ErrUnknownView)
		}
		return fmt.Errorf("rebuild %s: load definition: %w", name, err)
	}

	ident := quoteIdent(name)
	if _, err = tx.ExecContext(ctx, "DELETE FROM "+ident); err != nil {
		return fmt.Errorf("rebuild %s: clear: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO "+ident+" "+definition); err != nil {
		return fmt.Errorf("rebuild %s: fill: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("rebuild %s: commit: %w", name, err)
	}
	return nil
}

func (s *sqliteViewStore) Analyze(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, "ANALYZE "+quoteIdent(name)); err != nil {
		return fmt.Errorf("analyze %s: %w", name, err)
	}
	return nil
}

func (s *postgresViewStore) RowCount(ctx context.Context, name string) (int64, error) {
	return countRows(ctx, s.conn, name)
}

func (s *sqliteViewStore) RowCount(ctx context.Context, name string) (int64, error) {
	return countRows(ctx, s.conn, name)
}

func countRows(ctx context.Context, conn *sql.DB, name string) (int64, error) {
	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", name, err)
	}
	return n, nil
}
