// Package events defines the structured observability events this
// system emits and a slog-backed sink. Formatting, alerting, and any
// downstream fan-out are external concerns; the sink contract is just
// Emit.
package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the writer and the reconciler.
const (
	RecordCreated = "record_created"
	ReconcileRun  = "reconcile_run"
	DriftDetected = "drift_detected"
)

// Event is a single structured observability event.
type Event struct {
	ID     string
	Name   string
	Time   time.Time
	Fields map[string]any
}

// Sink accepts events. Implementations must tolerate being called from
// concurrent operations.
type Sink interface {
	Emit(Event)
}

// New builds an event with a fresh ID and the current time.
func New(name string, fields map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Name:   name,
		Time:   time.Now().UTC(),
		Fields: fields,
	}
}

// LogSink emits events through slog at Info level.
type LogSink struct {
	Log *slog.Logger
}

// NewLogSink wraps a logger; nil means slog.Default().
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{Log: log}
}

// Emit logs the event with its fields flattened into slog attributes.
func (s *LogSink) Emit(e Event) {
	attrs := make([]any, 0, 2+2*len(e.Fields))
	attrs = append(attrs, "event_id", e.ID)
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	s.Log.Info(e.Name, attrs...)
}

// Discard is a Sink that drops every event. Used in tests and when
// observability is disabled.
type Discard struct{}

func (Discard) Emit(Event) {}
