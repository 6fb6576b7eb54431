// Package events publishes session lifecycle events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle event. It doubles as the routing key.
type Type string

// Lifecycle event types.
const (
	SessionAdmitted  Type = "agent.session.admitted"
	SessionRestored  Type = "agent.session.restored"
	SessionEnded     Type = "agent.session.ended"
	SessionDismissed Type = "agent.session.dismissed"
	AdmitConflict    Type = "agent.session.conflict"
)

// Meta carries envelope metadata.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Type          Type      `json:"type"`
	Time          time.Time `json:"time"`
}

// SessionEvent is the payload of every lifecycle event.
type SessionEvent struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	Reason         string `json:"reason,omitempty"`
}

// Envelope is what goes on the wire.
type Envelope struct {
	Meta Meta         `json:"meta"`
	Data SessionEvent `json:"data"`
}

// New builds an envelope with a fresh id. The conversation id correlates
// all events of one session.
func New(t Type, conversationID, agentID, reason string) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: conversationID,
			Type:          t,
			Time:          time.Now().UTC(),
		},
		Data: SessionEvent{ConversationID: conversationID, AgentID: agentID, Reason: reason},
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// Types returns the event types published for conversationID, in order.
func (r *Recorder) Types(conversationID string) []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Type
	for _, e := range r.events {
		if e.Data.ConversationID == conversationID {
			out = append(out, e.Meta.Type)
		}
	}
	return out
}
