package jobs

import (
	"sync"
	"time"

	"secure-scrub/internal/domain"
)

// EventType classifies messages emitted during a batch run.
type EventType string

const (
	EventTypeStage   EventType = "stage"
	EventTypeLog     EventType = "log"
	EventTypeOutcome EventType = "outcome"
	EventTypeWarning EventType = "warning"
)

// Event is a sequenced payload consumed by the terminal renderer and the
// JSON report.
type Event struct {
	Seq       int64                `json:"seq"`
	Timestamp time.Time            `json:"timestamp"`
	RunID     string               `json:"runId"`
	Type      EventType            `json:"type"`
	Path      string               `json:"path,omitempty"`
	Stage     domain.FileStage     `json:"stage,omitempty"`
	Status    domain.OutcomeStatus `json:"status,omitempty"`
	Strategy  domain.Strategy      `json:"strategy,omitempty"`
	Message   string               `json:"message,omitempty"`
	Command   string               `json:"command,omitempty"`
	ExitCode  int                  `json:"exitCode,omitempty"`
	Stderr    string               `json:"stderr,omitempty"`
	Original  int64                `json:"originalSize,omitempty"`
	Final     int64                `json:"finalSize,omitempty"`
}

// EventBus stores recent events, provides incremental reads and fans out to
// subscribers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers []func(Event)
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	// delivered under the lock so subscribers see events in sequence order
	for _, fn := range b.subscribers {
		fn(event)
	}
	return event
}

// Subscribe registers fn for every event published afterwards. fn must not
// publish.
func (b *EventBus) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
