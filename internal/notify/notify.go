// Package notify announces committed registration changes to other services.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names the registration change being announced.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindCanceled   Kind = "canceled"
)

// Message is the payload published for every committed change.
type Message struct {
	Type      Kind      `json:"type"`
	EventID   uuid.UUID `json:"event_id"`
	StudentID uuid.UUID `json:"student_id"`
	At        time.Time `json:"at"`
}

// Publisher delivers registration change messages. Delivery is best effort:
// a message is published only after its transaction committed, and a failed
// publish never undoes the change.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NopPublisher discards every message. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }
