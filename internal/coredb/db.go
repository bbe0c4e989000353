// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coredb persists run records, the run event journal and cached
// module schemas in a single SQLite file.
package coredb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowd-org/slicerwrap/internal/paths"
)

const (
	sqliteDriverName = "sqlite"

	defaultBusyTimeout       = 5 * time.Second
	defaultWalAutoCheckpoint = 1000

	defaultGlobalMaxBytes  = 256 << 20
	defaultJournalMaxBytes = 64 << 20
)

// Options controls how the database is opened.
type Options struct {
	// DataDir holds slwrap.db. Empty selects paths.DataDir.
	DataDir string
	// MaxBytes bounds the database file. Zero uses 256 MiB.
	MaxBytes int64
	// JournalMaxBytes bounds the journal payloads. Zero uses 64 MiB.
	JournalMaxBytes int64
}

// DB wraps the SQLite connection.
type DB struct {
	sql  *sql.DB
	opts Options
}

// Open creates the data directory if needed, applies pragmas and migrates the
// schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dir := opts.DataDir
	if dir == "" {
		dir = paths.DataDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	dbPath := paths.DatabasePath(dir)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", filepath.ToSlash(dbPath), int(defaultBusyTimeout/time.Millisecond))
	conn, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	resolved := opts
	resolved.DataDir = dir
	if resolved.MaxBytes <= 0 {
		resolved.MaxBytes = defaultGlobalMaxBytes
	}
	if resolved.JournalMaxBytes <= 0 {
		resolved.JournalMaxBytes = defaultJournalMaxBytes
	}

	if err := configureConnection(ctx, conn, resolved); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := applyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{sql: conn, opts: resolved}, nil
}

func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// SQL exposes the raw connection.
func (db *DB) SQL() *sql.DB {
	if db == nil {
		return nil
	}
	return db.sql
}

// Options returns the resolved options.
func (db *DB) Options() Options {
	if db == nil {
		return Options{}
	}
	return db.opts
}

// Path returns the database file path.
func (db *DB) Path() string {
	return paths.DatabasePath(db.Options().DataDir)
}

func configureConnection(ctx context.Context, conn *sql.DB, opts Options) error {
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	statements := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d;", defaultWalAutoCheckpoint),
	}

	var pageSize int64 = 4096
	if err := conn.QueryRowContext(ctx, "PRAGMA page_size;").Scan(&pageSize); err != nil || pageSize <= 0 {
		pageSize = 4096
	}
	maxPages := opts.MaxBytes / pageSize
	if maxPages <= 0 {
		maxPages = defaultGlobalMaxBytes / 4096
	}
	statements = append(statements,
		fmt.Sprintf("PRAGMA max_page_count=%d;", maxPages),
		fmt.Sprintf("PRAGMA journal_size_limit=%d;", opts.JournalMaxBytes),
	)

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute pragma %q: %w", stmt, err)
		}
	}
	return nil
}
