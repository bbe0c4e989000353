// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/flowd-org/slicerwrap/internal/metrics"
	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
)

const (
	defaultCacheLimit    = 32 << 20
	maxCachedSchemaBytes = 4 << 20
)

var (
	// ErrCacheUnavailable is returned when the cache has no database.
	ErrCacheUnavailable = errors.New("coredb: schema cache unavailable")
	// ErrCacheQuotaExceeded is returned when a document would push the cache
	// over its byte budget or is itself too large.
	ErrCacheQuotaExceeded = errors.New("coredb: schema cache quota exceeded")
)

// CachedSchema is one cached schema document.
type CachedSchema struct {
	Executable  string    `json:"executable"`
	Fingerprint string    `json:"fingerprint"`
	Document    []byte    `json:"-"`
	Size        int64     `json:"size"`
	Timestamp   time.Time `json:"timestamp"`
}

// SchemaCache stores raw schema documents keyed by executable path. An entry
// is only served while the executable's fingerprint is unchanged.
type SchemaCache struct {
	db    *DB
	limit int64
	now   func() time.Time
}

// NewSchemaCache returns a cache bounded by limitBytes; <= 0 uses 32 MiB.
func NewSchemaCache(db *DB, limitBytes int64) *SchemaCache {
	if limitBytes <= 0 {
		limitBytes = defaultCacheLimit
	}
	return &SchemaCache{db: db, limit: limitBytes, now: func() time.Time { return time.Now().UTC() }}
}

// Fingerprint identifies the current build of an executable by size and
// modification time.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano()), nil
}

func (c *SchemaCache) conn() (*sql.DB, error) {
	if c == nil || c.db == nil || c.db.sql == nil {
		return nil, ErrCacheUnavailable
	}
	return c.db.sql, nil
}

// Get returns the cached document for executable when its fingerprint
// matches.
func (c *SchemaCache) Get(ctx context.Context, executable, fingerprint string) (doc []byte, ok bool, err error) {
	conn, err := c.conn()
	if err != nil {
		return nil, false, err
	}
	ctx, span := tracing.Start(ctx, "coredb.schema_cache.get", tracing.StoreOp("get"), tracing.String("executable", executable))
	defer tracing.End(span, &err)
	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationSchemaCacheGet)
	defer func() {
		if err != nil {
			timer.Observe(metrics.PersistenceOutcomeError)
		}
	}()

	var stored string
	err = conn.QueryRowContext(ctx,
		`SELECT fingerprint, document FROM core_schema_cache WHERE executable = ?`, executable,
	).Scan(&stored, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(tracing.String("cache.outcome", "miss"))
		timer.Observe(metrics.PersistenceOutcomeMiss)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schema cache lookup: %w", err)
	}
	if stored != fingerprint {
		span.SetAttributes(tracing.String("cache.outcome", "stale"))
		timer.Observe(metrics.PersistenceOutcomeStale)
		return nil, false, nil
	}
	span.SetAttributes(tracing.String("cache.outcome", "hit"))
	timer.Observe(metrics.PersistenceOutcomeHit)
	return doc, true, nil
}

// Put stores doc for executable, replacing any previous entry.
func (c *SchemaCache) Put(ctx context.Context, executable, fingerprint string, doc []byte) (err error) {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationSchemaCachePut)
	defer func() { timer.Observe(outcome(err)) }()
	if len(doc) > maxCachedSchemaBytes {
		return ErrCacheQuotaExceeded
	}
	ctx, span := tracing.Start(ctx, "coredb.schema_cache.put",
		tracing.StoreOp("put"),
		tracing.String("executable", executable),
		tracing.Int("document.bytes", len(doc)))
	defer tracing.End(span, &err)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(document)), 0) FROM core_schema_cache WHERE executable != ?`, executable).Scan(&current); err != nil {
		return fmt.Errorf("schema cache size: %w", err)
	}
	if current+int64(len(doc)) > c.limit {
		return ErrCacheQuotaExceeded
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO core_schema_cache (executable, fingerprint, document, ts) VALUES (?, ?, ?, ?)
ON CONFLICT(executable) DO UPDATE SET fingerprint=excluded.fingerprint, document=excluded.document, ts=excluded.ts;`,
		executable, fingerprint, doc, c.now().UnixMilli()); err != nil {
		return fmt.Errorf("schema cache store: %w", err)
	}
	return tx.Commit()
}

// Delete removes the entry for executable and reports whether one existed.
func (c *SchemaCache) Delete(ctx context.Context, executable string) (bool, error) {
	conn, err := c.conn()
	if err != nil {
		return false, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM core_schema_cache WHERE executable = ?`, executable)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Clear removes every entry and returns how many were removed.
func (c *SchemaCache) Clear(ctx context.Context) (int64, error) {
	conn, err := c.conn()
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM core_schema_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns cached entries ordered by executable, without documents.
func (c *SchemaCache) List(ctx context.Context) ([]CachedSchema, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT executable, fingerprint, length(document), ts FROM core_schema_cache ORDER BY executable ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedSchema
	for rows.Next() {
		var (
			item CachedSchema
			ts   int64
		)
		if err := rows.Scan(&item.Executable, &item.Fingerprint, &item.Size, &ts); err != nil {
			return nil, err
		}
		item.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, item)
	}
	return out, rows.Err()
}
