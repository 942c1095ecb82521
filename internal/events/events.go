// Package events publishes domain events about messages to downstream
// consumers such as notification workers.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeMessageCreated = "message.created"
	TypeMessagesRead   = "messages.read"
)

// Event is one domain event. Key groups events of the same conversation so
// consumers see them in order.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Publisher delivers events. Implementations must be safe for concurrent use
// and Publish must not wait for the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
