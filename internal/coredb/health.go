// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StorageStats summarises database usage for `slwrap :runs --stats`.
type StorageStats struct {
	Path            string `json:"path"`
	OK              bool   `json:"ok"`
	BytesUsed       int64  `json:"bytes_used"`
	MaxBytes        int64  `json:"max_bytes"`
	JournalBytes    int64  `json:"journal_bytes"`
	JournalMaxBytes int64  `json:"journal_max_bytes"`
	Runs            int64  `json:"runs"`
	CachedSchemas   int64  `json:"cached_schemas"`
	EvictionActive  bool   `json:"eviction_active"`
	SchemaVersion   int64  `json:"schema_version"`
}

func CollectStorageStats(ctx context.Context, db *DB) (StorageStats, error) {
	if db == nil || db.sql == nil {
		return StorageStats{}, errors.New("coredb: database not initialised")
	}
	conn := db.SQL()
	stats := StorageStats{Path: db.Path(), JournalMaxBytes: db.opts.JournalMaxBytes}

	queries := []struct {
		stmt string
		dst  *int64
	}{
		{"PRAGMA user_version;", &stats.SchemaVersion},
		{`SELECT COALESCE(SUM(length(payload)), 0) FROM core_run_journal`, &stats.JournalBytes},
		{`SELECT COUNT(*) FROM core_runs`, &stats.Runs},
		{`SELECT COUNT(*) FROM core_schema_cache`, &stats.CachedSchemas},
	}
	for _, q := range queries {
		v, err := querySingleInt(ctx, conn, q.stmt)
		if err != nil {
			return stats, fmt.Errorf("coredb: %s: %w", q.stmt, err)
		}
		*q.dst = v
	}

	pageSize, err := querySingleInt(ctx, conn, "PRAGMA page_size;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_size: %w", err)
	}
	pageCount, err := querySingleInt(ctx, conn, "PRAGMA page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_count: %w", err)
	}
	maxPageCount, err := querySingleInt(ctx, conn, "PRAGMA max_page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup max_page_count: %w", err)
	}
	stats.BytesUsed = pageCount * pageSize
	stats.MaxBytes = maxPageCount * pageSize
	if stats.MaxBytes <= 0 {
		stats.MaxBytes = db.opts.MaxBytes
	}
	stats.OK = stats.MaxBytes == 0 || stats.BytesUsed < stats.MaxBytes
	if stats.JournalMaxBytes > 0 && stats.JournalBytes >= (stats.JournalMaxBytes*9)/10 {
		stats.EvictionActive = true
	}
	return stats, nil
}

func querySingleInt(ctx context.Context, conn *sql.DB, stmt string) (int64, error) {
	var out sql.NullInt64
	if err := conn.QueryRowContext(ctx, stmt).Scan(&out); err != nil {
		return 0, err
	}
	return out.Int64, nil
}
