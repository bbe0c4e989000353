// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

var baseMigrations = [...]string{
	`CREATE TABLE IF NOT EXISTS core_runs (
		id TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		status TEXT NOT NULL,
		cmdline TEXT NOT NULL,
		exit_code INTEGER,
		error TEXT,
		outputs BLOB,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_core_runs_started ON core_runs(started_at);`,
	`CREATE TABLE IF NOT EXISTS core_run_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload BLOB NOT NULL,
		ts INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_core_journal_run_ts ON core_run_journal(run_id, ts);`,
	`CREATE TABLE IF NOT EXISTS core_schema_cache (
		executable TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		document BLOB NOT NULL,
		ts INTEGER NOT NULL
	);`,
}

func applyMigrations(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range baseMigrations {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}
