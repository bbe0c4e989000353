// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/flowd-org/slicerwrap/internal/coredb"
)

// JournalSink persists run events in the run journal.
type JournalSink struct {
	journal *coredb.Journal
	logger  *slog.Logger
	mu      sync.Mutex
	seq     int64
	nowFn   func() time.Time
}

// NewJournalSink returns nil when journal is nil so it can be passed straight
// to NewCompositeSink.
func NewJournalSink(journal *coredb.Journal, logger *slog.Logger) Sink {
	if journal == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalSink{journal: journal, logger: logger, nowFn: func() time.Time { return time.Now().UTC() }}
}

func (s *JournalSink) persist(ev RunEvent) {
	s.mu.Lock()
	s.seq++
	ev.Sequence = s.seq
	s.mu.Unlock()
	ev.Timestamp = s.nowFn()

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode run event", slog.String("run_id", ev.RunID), slog.String("event", ev.Type), slog.String("error", err.Error()))
		return
	}
	if _, err := s.journal.Append(context.Background(), ev.RunID, ev.Type, payload, ev.Timestamp); err != nil {
		s.logger.Error("persist run event", slog.String("run_id", ev.RunID), slog.String("event", ev.Type), slog.String("error", err.Error()))
	}
}

func (s *JournalSink) EmitRunStart(runID, module string) {
	s.persist(newRunStart(runID, module))
}

func (s *JournalSink) EmitRunFinish(runID, status string, err error) {
	s.persist(newRunFinish(runID, status, err))
}

func (s *JournalSink) EmitStepStart(runID, step string) {
	s.persist(RunEvent{Type: TypeStepStart, RunID: runID, Step: step})
}

func (s *JournalSink) EmitStepLog(runID, step, channel, message string) {
	if message == "" {
		return
	}
	s.persist(RunEvent{Type: TypeStepLog, RunID: runID, Step: step, Channel: channel, Message: message})
}

func (s *JournalSink) EmitStepFinish(runID, step string, exitCode int, err error) {
	s.persist(newStepFinish(runID, step, exitCode, err))
}

// DecodeEntry turns a journal entry back into the event it was written from.
func DecodeEntry(entry coredb.JournalEntry) (RunEvent, error) {
	var ev RunEvent
	if err := json.Unmarshal(entry.Payload, &ev); err != nil {
		return RunEvent{}, err
	}
	return ev, nil
}
