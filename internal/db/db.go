package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/sumitkushwahji/time-traceability-backend/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured store. Statement logging is enabled when the
// configured level is debug.
func Open(cfg config.Config) (*sql.DB, Dialect, error) {
	dialect := DialectFor(cfg.Driver)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = openPostgres(cfg)
	default:
		db, err = openSQLite(cfg)
	}
	if err != nil {
		return nil, dialect, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Validate connectivity early
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dialect, fmt.Errorf("db ping: %w", err)
	}

	return db, dialect, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func openSQLite(cfg config.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel <= slog.LevelDebug {
		connector, err := NewLoggingConnector(dsn, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		return sql.OpenDB(connector), nil
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	return db, nil
}

func openPostgres(cfg config.Config) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	if cfg.LogLevel <= slog.LevelDebug {
		connCfg.Tracer = &tracelog.TraceLog{
			Logger:   NewTraceLogger(slog.Default()),
			LogLevel: tracelog.LogLevelDebug,
		}
	}
	return stdlib.OpenDB(*connCfg), nil
}

func buildDSN(cfg config.Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	// Ensure directory exists for file-backed sqlite db
	path := cfg.Path
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// - busy_timeout: the monitor and the refresh cycle write concurrently
	// - journal_mode=WAL: readers on other pool connections keep their snapshot
	//   while an aggregate is rebuilt
	// - txlock=immediate: a transaction takes the write lock at BEGIN and waits
	//   on busy_timeout instead of failing when it upgrades
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_txlock=immediate",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
