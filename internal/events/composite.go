// SPDX-License-Identifier: AGPL-3.0-or-later
package events

// Sink consumes run events.
type Sink interface {
	EmitRunStart(runID, module string)
	EmitRunFinish(runID, status string, err error)
	EmitStepStart(runID, step string)
	EmitStepLog(runID, step, channel, message string)
	EmitStepFinish(runID, step string, exitCode int, err error)
}

// CompositeSink forwards every event to each sink in order.
type CompositeSink []Sink

// NewCompositeSink drops nil sinks. It returns nil when nothing is left and
// the sink itself when exactly one remains.
func NewCompositeSink(sinks ...Sink) Sink {
	var kept CompositeSink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return kept
}

func (c CompositeSink) each(fn func(Sink)) {
	for _, s := range c {
		fn(s)
	}
}

func (c CompositeSink) EmitRunStart(runID, module string) {
	c.each(func(s Sink) { s.EmitRunStart(runID, module) })
}

func (c CompositeSink) EmitRunFinish(runID, status string, err error) {
	c.each(func(s Sink) { s.EmitRunFinish(runID, status, err) })
}

func (c CompositeSink) EmitStepStart(runID, step string) {
	c.each(func(s Sink) { s.EmitStepStart(runID, step) })
}

func (c CompositeSink) EmitStepLog(runID, step, channel, message string) {
	c.each(func(s Sink) { s.EmitStepLog(runID, step, channel, message) })
}

func (c CompositeSink) EmitStepFinish(runID, step string, exitCode int, err error) {
	c.each(func(s Sink) { s.EmitStepFinish(runID, step, exitCode, err) })
}
