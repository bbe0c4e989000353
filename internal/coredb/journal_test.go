package coredb

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestJournalAppendAndIterate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal(openTestDB(t), 0)

	ts := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	first, err := journal.Append(ctx, "run-1", "run.start", []byte(`{"module":"BRAINSFit"}`), ts)
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Seq == 0 {
		t.Fatalf("expected sequence > 0")
	}
	second, err := journal.Append(ctx, "run-1", "step.log", []byte(`{"message":"hello"}`), ts.Add(time.Second))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected second seq greater than first (first=%d second=%d)", first.Seq, second.Seq)
	}
	if _, err := journal.Append(ctx, "run-2", "run.start", []byte(`{}`), ts); err != nil {
		t.Fatalf("append other run: %v", err)
	}

	var entries []JournalEntry
	if err := journal.ForEach(ctx, "run-1", 0, func(e JournalEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("journal iterate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Timestamp.Equal(ts) {
		t.Fatalf("expected first timestamp %v, got %v", ts, entries[0].Timestamp)
	}
	if entries[1].EventType != "step.log" {
		t.Fatalf("expected event type step.log, got %s", entries[1].EventType)
	}

	entries = nil
	_ = journal.ForEach(ctx, "run-1", first.Seq, func(e JournalEntry) error {
		entries = append(entries, e)
		return nil
	})
	if len(entries) != 1 || entries[0].Seq != second.Seq {
		t.Fatalf("expected only entries after %d, got %#v", first.Seq, entries)
	}
}

func TestJournalEvictsOldestWhenOverLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal(openTestDB(t), 30)

	if _, err := journal.Append(ctx, "run-1", "step.log", []byte(`{"message":"alpha"}`), time.Now().UTC()); err != nil {
		t.Fatalf("append alpha: %v", err)
	}
	second, err := journal.Append(ctx, "run-1", "step.log", []byte(`{"message":"bravo"}`), time.Now().UTC())
	if err != nil {
		t.Fatalf("append bravo: %v", err)
	}

	earliest, latest, err := journal.Bounds(ctx, "run-1")
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if earliest != second.Seq || latest != second.Seq {
		t.Fatalf("expected bounds to equal second seq %d, got earliest=%d latest=%d", second.Seq, earliest, latest)
	}
}

func TestJournalRejectsPayloadAboveLimit(t *testing.T) {
	t.Parallel()

	journal := NewJournal(openTestDB(t), 8)
	_, err := journal.Append(context.Background(), "run-1", "step.log", []byte(`{"msg":"too big"}`), time.Now().UTC())
	if !errors.Is(err, ErrJournalQuotaExceeded) {
		t.Fatalf("expected ErrJournalQuotaExceeded, got %v", err)
	}
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected IsQuotaExceeded to classify journal quota")
	}
}

func TestJournalRequiresRunID(t *testing.T) {
	t.Parallel()

	journal := NewJournal(openTestDB(t), 0)
	if _, err := journal.Append(context.Background(), "", "run.start", []byte(`{}`), time.Time{}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}
