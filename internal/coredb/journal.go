// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flowd-org/slicerwrap/internal/metrics"
	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
)

// ErrJournalQuotaExceeded is returned for a single payload larger than the
// journal limit.
var ErrJournalQuotaExceeded = errors.New("coredb: journal quota exceeded")

// JournalEntry is one persisted run event.
type JournalEntry struct {
	Seq       int64
	RunID     string
	EventType string
	Payload   []byte
	Timestamp time.Time
}

// Journal is an append-only event log bounded by total payload size. The
// oldest entries are evicted to make room.
type Journal struct {
	db       *sql.DB
	maxBytes int64
	nowFn    func() time.Time
}

// NewJournal returns nil for a nil db. maxBytes <= 0 selects the database's
// configured journal limit.
func NewJournal(db *DB, maxBytes int64) *Journal {
	if db == nil {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = db.opts.JournalMaxBytes
	}
	if maxBytes <= 0 {
		maxBytes = defaultJournalMaxBytes
	}
	return &Journal{
		db:       db.sql,
		maxBytes: maxBytes,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Append stores an event and returns it with its sequence number. Eviction
// and insertion share one transaction.
func (j *Journal) Append(ctx context.Context, runID, eventType string, payload []byte, ts time.Time) (entry JournalEntry, err error) {
	if j == nil {
		return entry, nil
	}
	ctx, span := tracing.Start(ctx, "coredb.journal.append",
		tracing.StoreOp("append"),
		tracing.RunID(runID),
		tracing.Int("payload.bytes", len(payload)),
		tracing.String("journal.event_type", eventType),
	)
	defer tracing.End(span, &err)
	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationJournalAppend)
	defer func() { timer.Observe(outcome(err)) }()

	if runID == "" {
		return entry, fmt.Errorf("append journal: run id required")
	}
	if len(payload) == 0 {
		return entry, fmt.Errorf("append journal: payload required")
	}
	payloadBytes := int64(len(payload))
	if payloadBytes > j.maxBytes {
		return entry, ErrJournalQuotaExceeded
	}
	now := ts
	if now.IsZero() {
		now = j.nowFn()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(payload)), 0) FROM core_run_journal`).Scan(&existing); err != nil {
		return entry, fmt.Errorf("journal size lookup: %w", err)
	}
	var evicted int64
	var evictedSizes []int64
	for existing+payloadBytes > j.maxBytes {
		var seq, size int64
		err = tx.QueryRowContext(ctx, `SELECT seq, length(payload) FROM core_run_journal ORDER BY seq ASC LIMIT 1`).Scan(&seq, &size)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			break
		}
		if err != nil {
			return entry, fmt.Errorf("journal eviction lookup: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM core_run_journal WHERE seq = ?`, seq); err != nil {
			return entry, fmt.Errorf("journal eviction delete seq=%d: %w", seq, err)
		}
		evicted += size
		evictedSizes = append(evictedSizes, size)
		existing = max(existing-size, 0)
	}
	if evicted > 0 {
		span.SetAttributes(tracing.Int64("journal.evicted_bytes", evicted))
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO core_run_journal (run_id, event_type, payload, ts)
VALUES (?, ?, ?, ?)
`, runID, eventType, payload, now.UnixMilli())
	if err != nil {
		return entry, fmt.Errorf("journal insert: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("journal last insert id: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return entry, fmt.Errorf("journal commit: %w", err)
	}
	for _, size := range evictedSizes {
		metrics.RecordPersistenceEviction(metrics.PersistenceKindJournal, size)
	}

	span.SetAttributes(tracing.Int64("journal.seq", seq))
	return JournalEntry{
		Seq:       seq,
		RunID:     runID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		Timestamp: now,
	}, nil
}

// Bounds returns the earliest and latest retained sequence for runID. Zero
// earliest means nothing is stored.
func (j *Journal) Bounds(ctx context.Context, runID string) (earliest, latest int64, err error) {
	if j == nil {
		return 0, 0, nil
	}
	if err = j.db.QueryRowContext(ctx, `
SELECT COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0)
FROM core_run_journal WHERE run_id = ?
`, runID).Scan(&earliest, &latest); err != nil {
		return 0, 0, fmt.Errorf("journal bounds: %w", err)
	}
	return earliest, latest, nil
}

// ForEach calls fn for each event of runID with seq > afterSeq, in order,
// stopping at the first error fn returns.
func (j *Journal) ForEach(ctx context.Context, runID string, afterSeq int64, fn func(JournalEntry) error) (err error) {
	if j == nil || fn == nil {
		return nil
	}
	ctx, span := tracing.Start(ctx, "coredb.journal.read",
		tracing.StoreOp("read"),
		tracing.RunID(runID),
		tracing.Int64("journal.after_seq", afterSeq),
	)
	defer tracing.End(span, &err)
	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationJournalRead)
	defer func() { timer.Observe(outcome(err)) }()

	rows, err := j.db.QueryContext(ctx, `
SELECT seq, event_type, payload, ts
FROM core_run_journal
WHERE run_id = ? AND seq > ?
ORDER BY seq ASC
`, runID, afterSeq)
	if err != nil {
		return fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	entries := 0
	for rows.Next() {
		var (
			e        JournalEntry
			tsMillis int64
		)
		if err = rows.Scan(&e.Seq, &e.EventType, &e.Payload, &tsMillis); err != nil {
			return fmt.Errorf("journal scan: %w", err)
		}
		e.RunID = runID
		e.Timestamp = time.UnixMilli(tsMillis).UTC()
		entries++
		if err = fn(e); err != nil {
			return err
		}
	}
	span.SetAttributes(tracing.Int("journal.entries", entries))
	if err = rows.Err(); err != nil {
		return fmt.Errorf("journal rows: %w", err)
	}
	return nil
}

// outcome maps an operation error to its metrics outcome label.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.PersistenceOutcomeOK
	case IsQuotaExceeded(err):
		return metrics.PersistenceOutcomeQuotaExceeded
	default:
		return metrics.PersistenceOutcomeError
	}
}
