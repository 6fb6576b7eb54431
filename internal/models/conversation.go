package models

import "time"

// ConversationStatus is the backend-owned lifecycle status of a conversation.
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "OPEN"
	StatusQueued   ConversationStatus = "QUEUED"
	StatusAssigned ConversationStatus = "ASSIGNED"
	StatusClosed   ConversationStatus = "CLOSED"
)

// ConversationMetadata is the latest snapshot of a conversation received from
// an accept, close, list or handshake response.
type ConversationMetadata struct {
	ID         string             `json:"id"`
	Status     ConversationStatus `json:"status"`
	Customer   *Participant       `json:"customer,omitempty"`
	Agent      *Participant       `json:"agent,omitempty"`
	CreatedAt  *time.Time         `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time         `json:"updatedAt,omitempty"`
	AcceptedAt *time.Time         `json:"acceptedAt,omitempty"`
	ClosedAt   *time.Time         `json:"closedAt,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	Attributes map[string]any     `json:"attributes,omitempty"`
}

// CustomerName returns the customer's display name, or fallback when unknown.
func (c *ConversationMetadata) CustomerName(fallback string) string {
	if c == nil || c.Customer == nil {
		return fallback
	}
	return c.Customer.Name(fallback)
}

// Handshake is the first event on a freshly opened conversation channel.
type Handshake struct {
	Participant  Participant          `json:"participant"`
	Conversation ConversationMetadata `json:"conversation"`
}
