// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"strings"
	"time"
)

const (
	// Persistence operations recorded in metrics.
	PersistenceOperationJournalAppend  = "journal_append"
	PersistenceOperationJournalRead    = "journal_read"
	PersistenceOperationSchemaCacheGet = "schema_cache_get"
	PersistenceOperationSchemaCachePut = "schema_cache_put"

	PersistenceKindJournal = "journal"

	// Persistence outcomes used to categorize latency observations.
	PersistenceOutcomeOK            = "ok"
	PersistenceOutcomeError         = "error"
	PersistenceOutcomeHit           = "hit"
	PersistenceOutcomeMiss          = "miss"
	PersistenceOutcomeStale         = "stale"
	PersistenceOutcomeQuotaExceeded = "quota_exceeded"
)

var latencyDefaults = map[string][]string{
	PersistenceOperationJournalAppend: {
		PersistenceOutcomeOK,
		PersistenceOutcomeQuotaExceeded,
		PersistenceOutcomeError,
	},
	PersistenceOperationJournalRead: {
		PersistenceOutcomeOK,
		PersistenceOutcomeError,
	},
	PersistenceOperationSchemaCacheGet: {
		PersistenceOutcomeHit,
		PersistenceOutcomeMiss,
		PersistenceOutcomeStale,
		PersistenceOutcomeError,
	},
	PersistenceOperationSchemaCachePut: {
		PersistenceOutcomeOK,
		PersistenceOutcomeQuotaExceeded,
		PersistenceOutcomeError,
	},
}

// PersistenceTimer records elapsed time for a persistence operation and
// writes the result when Observe is invoked.
type PersistenceTimer struct {
	operation string
	start     time.Time
	recorded  bool
}

// StartPersistenceTimer returns a timer for the supplied operation.
func StartPersistenceTimer(operation string) *PersistenceTimer {
	op := sanitize(operation)
	if op == "" {
		return nil
	}
	return &PersistenceTimer{
		operation: op,
		start:     time.Now(),
	}
}

// Observe records the latency with outcome. Only the first call counts.
func (t *PersistenceTimer) Observe(outcome string) {
	if t == nil || t.recorded {
		return
	}
	t.recorded = true
	o := sanitize(outcome)
	if o == "" {
		o = PersistenceOutcomeOK
	}
	Default.RecordPersistenceLatency(t.operation, o, time.Since(t.start))
}

// RecordPersistenceEviction counts one evicted record on Default.
func RecordPersistenceEviction(kind string, bytes int64) {
	Default.RecordPersistenceEviction(sanitize(kind), bytes)
}

func sanitize(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
