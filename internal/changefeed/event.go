// Package changefeed delivers coordinator state changes to subscribers: the
// in-process view layer and, optionally, a Kafka topic.
package changefeed

import (
	"context"
	"time"
)

// EventType classifies a change event.
type EventType string

const (
	// EventReloaded is emitted when a collection snapshot was replaced.
	EventReloaded EventType = "collection.reloaded"
	// EventMutated is emitted after a successful write, before the reload.
	EventMutated EventType = "record.mutated"
	// EventFailed is emitted for every surfaced failure.
	EventFailed EventType = "sync.failed"
)

// Event is the payload published for every coordinator state change.
type Event struct {
	Type       EventType `json:"type"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Intent     string    `json:"intent,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Items      int       `json:"items,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher hands events to a downstream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }
