// Package repository provides the embedded SQLite access layer. Resources,
// memberships, audit records, and bearer tokens all live in one store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLite DSN parameters. The write pool is capped at one connection with
// immediate transactions so conflicting mutations of the same resource are
// serialized; two concurrent patches can never both read version N and both
// write N+1.
const (
	busyTimeout = "5000"
	journalMode = "WAL"
	synchronous = "NORMAL"
)

// Repository provides store access over a write/read SQLite pool pair.
type Repository struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// New opens the SQLite store at path, runs pending migrations, and returns
// a ready Repository.
func New(path string) (*Repository, error) {
	writeDB, err := open(path, true)
	if err != nil {
		return nil, err
	}

	readDB, err := open(path, false)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	r := &Repository{writeDB: writeDB, readDB: readDB}
	if err := r.migrate(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func open(path string, write bool) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeout)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")
	if write {
		params.Set("_txlock", "immediate")
	}

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if write {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

func (r *Repository) migrate() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(r.writeDB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Ping checks store connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.readDB.PingContext(ctx)
}

// Close closes both connection pools.
func (r *Repository) Close() {
	_ = r.readDB.Close()
	_ = r.writeDB.Close()
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
