package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "pg serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "pg deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "pg lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "wrapped pg deadlock", err: fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "pg unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "sqlite locked", err: fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation_FromDriver(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, code TEXT UNIQUE)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t (id, code) VALUES (1, 'a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = db.Exec(`INSERT INTO t (id, code) VALUES (2, 'a')`)
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(unique) = false for %v", err)
	}
	_, err = db.Exec(`INSERT INTO t (id, code) VALUES (1, 'b')`)
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(primary key) = false for %v", err)
	}
	if IsUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("IsUniqueViolation(plain error) = true, want false")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("IsUniqueViolation(pg 23505) = false, want true")
	}
}

func TestIsObjectNotInPrerequisiteState(t *testing.T) {
	if !IsObjectNotInPrerequisiteState(fmt.Errorf("refresh: %w", &pgconn.PgError{Code: "55000"})) {
		t.Error("want true for 55000")
	}
	if IsObjectNotInPrerequisiteState(&pgconn.PgError{Code: "42P01"}) {
		t.Error("want false for 42P01")
	}
}
