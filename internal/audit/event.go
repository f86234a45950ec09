// Package audit provides the coordinator's bounded, non-blocking audit
// trail. Every mode transition, rejection, and lifecycle step is emitted
// as an event and exported by a background worker; the command path never
// blocks on logging.
package audit

import (
	"context"
	"sync"
	"time"
)

// Kind classifies an audit event.
type Kind string

const (
	KindTransition Kind = "transition"
	KindReject     Kind = "reject"
	KindLifecycle  Kind = "lifecycle"
	KindError      Kind = "error"
)

// Severity is the event severity level.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Correlation carries session-scoped correlation fields.
type Correlation struct {
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Command   string `json:"command,omitempty"`
}

// Event is the normalized audit emission envelope.
type Event struct {
	Kind        Kind              `json:"kind"`
	Severity    Severity          `json:"severity"`
	TimestampMS int64             `json:"timestamp_ms"`
	Message     string            `json:"message"`
	Correlation Correlation       `json:"correlation"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Sink exports normalized audit events.
type Sink interface {
	Export(context.Context, Event) error
}

// Emitter is a non-blocking audit emission handle.
type Emitter interface {
	Emit(kind Kind, severity Severity, message string, attributes map[string]string, correlation Correlation)
}

type noopEmitter struct{}

func (noopEmitter) Emit(Kind, Severity, string, map[string]string, Correlation) {}

// Noop returns an emitter that discards everything.
func Noop() Emitter { return noopEmitter{} }

// MemorySink is a deterministic in-memory sink used by tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]Event, 0, 64)}
}

// Export appends an event in memory.
func (s *MemorySink) Export(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all exported events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

var nowMS = func() int64 { return time.Now().UnixMilli() }
