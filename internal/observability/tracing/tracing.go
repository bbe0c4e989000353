// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tracing provides log-backed spans around schema fetches, module
// runs and journal writes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Attribute is a key/value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

const (
	AttrModule  = "module"
	AttrRunID   = "run_id"
	AttrStoreOp = "store.op"
)

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Module names the module a span belongs to.
func Module(name string) Attribute {
	return String(AttrModule, name)
}

// StoreOp names a persistence operation.
func StoreOp(op string) Attribute {
	return String(AttrStoreOp, op)
}

// RunID returns an empty attribute for an empty id so callers can pass it
// unconditionally.
func RunID(value string) Attribute {
	if value == "" {
		return Attribute{}
	}
	return String(AttrRunID, value)
}

type spanKey struct{}
type loggerKey struct{}

// WithLogger stores the logger spans started from ctx will write to.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger stored by WithLogger, or slog.Default.
func Logger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// Span is a timed operation reported as one structured log line on End.
type Span struct {
	name   string
	start  time.Time
	logger *slog.Logger
	parent string

	mu    sync.Mutex
	attrs map[string]any
	err   error
	ended bool
}

// Start begins a span and returns a context carrying it.
func Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := &Span{
		name:   name,
		start:  time.Now(),
		logger: Logger(ctx),
		attrs:  make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		span.parent = parent.name
	}
	span.SetAttributes(attrs...)
	return context.WithValue(ctx, spanKey{}, span), span
}

// FromContext returns the innermost span stored in ctx, if any.
func FromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Name returns the span name.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (s *Span) SetAttributes(attrs ...Attribute) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attr := range attrs {
		if attr.Key == "" {
			continue
		}
		s.attrs[attr.Key] = attr.Value
	}
}

func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End logs trace.span_end at Debug, or at Error when an error was recorded.
// Subsequent calls are no-ops.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	elapsed := time.Since(s.start)
	err := s.err
	logAttrs := make([]any, 0, len(s.attrs)+4)
	for k, v := range s.attrs {
		logAttrs = append(logAttrs, slog.Any(k, v))
	}
	s.mu.Unlock()

	logAttrs = append(logAttrs,
		slog.String("span", s.name),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000.0))
	if s.parent != "" {
		logAttrs = append(logAttrs, slog.String("parent", s.parent))
	}
	if err != nil {
		logAttrs = append(logAttrs, slog.String("error", err.Error()))
		s.logger.Error("trace.span_end", logAttrs...)
		return
	}
	s.logger.Debug("trace.span_end", logAttrs...)
}

// End records *errPtr, if set, and ends span. Intended for defer.
func End(span *Span, errPtr *error, attrs ...Attribute) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
	if errPtr != nil && *errPtr != nil {
		span.RecordError(*errPtr)
	}
	span.End()
}
