// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events carries the lifecycle and output of module runs to the
// terminal and the run journal.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeRunStart   = "run.start"
	TypeRunFinish  = "run.finish"
	TypeStepStart  = "step.start"
	TypeStepLog    = "step.log"
	TypeStepFinish = "step.finish"
)

// Run statuses reported by EmitRunFinish.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunEvent struct {
	Sequence  int64                  `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Step      string                 `json:"step,omitempty"`
	Channel   string                 `json:"channel,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Emitter writes events to out as text lines or JSON lines.
type Emitter struct {
	mu   sync.Mutex
	seq  int64
	out  io.Writer
	json bool
}

func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	return &Emitter{out: out, json: json}
}

func (e *Emitter) emit(ev RunEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev.Sequence = e.seq
	ev.Timestamp = time.Now().UTC()

	if e.json {
		payload, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(e.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(e.out, "%s\n", payload)
		return
	}

	fmt.Fprintf(e.out, "[%d] %s", ev.Sequence, ev.Type)
	if ev.RunID != "" {
		fmt.Fprintf(e.out, " run=%s", ev.RunID)
	}
	if ev.Step != "" {
		fmt.Fprintf(e.out, " step=%s", ev.Step)
	}
	if ev.Channel != "" {
		fmt.Fprintf(e.out, " channel=%s", ev.Channel)
	}
	if ev.Message != "" {
		fmt.Fprintf(e.out, " msg=%s", ev.Message)
	}
	if len(ev.Data) > 0 {
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprint(e.out, " data={")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(e.out, ", ")
			}
			fmt.Fprintf(e.out, "%s:%v", k, ev.Data[k])
		}
		fmt.Fprint(e.out, "}")
	}
	fmt.Fprintln(e.out)
}

func (e *Emitter) EmitRunStart(runID, module string) {
	e.emit(newRunStart(runID, module))
}

func (e *Emitter) EmitRunFinish(runID, status string, err error) {
	e.emit(newRunFinish(runID, status, err))
}

func (e *Emitter) EmitStepStart(runID, step string) {
	e.emit(RunEvent{Type: TypeStepStart, RunID: runID, Step: step})
}

func (e *Emitter) EmitStepLog(runID, step, channel, message string) {
	if message == "" {
		return
	}
	e.emit(RunEvent{Type: TypeStepLog, RunID: runID, Step: step, Channel: channel, Message: message})
}

func (e *Emitter) EmitStepFinish(runID, step string, exitCode int, err error) {
	e.emit(newStepFinish(runID, step, exitCode, err))
}

func newRunStart(runID, module string) RunEvent {
	return RunEvent{Type: TypeRunStart, RunID: runID, Data: map[string]interface{}{"module": module}}
}

func newRunFinish(runID, status string, err error) RunEvent {
	data := map[string]interface{}{"status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	return RunEvent{Type: TypeRunFinish, RunID: runID, Data: data}
}

func newStepFinish(runID, step string, exitCode int, err error) RunEvent {
	status := StatusCompleted
	if exitCode != 0 || err != nil {
		status = StatusFailed
	}
	data := map[string]interface{}{"exit_code": exitCode, "status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	return RunEvent{Type: TypeStepFinish, RunID: runID, Step: step, Data: data}
}

// GenerateRunID returns a new random run identifier.
func GenerateRunID() string {
	return uuid.NewString()
}
