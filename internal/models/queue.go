package models

import "time"

// QueueEntry is a conversation waiting for an agent. It has no identity
// beyond ConversationID.
type QueueEntry struct {
	ConversationID string     `json:"conversationId"`
	EnqueuedAt     *time.Time `json:"enqueuedAt,omitempty"`
	CustomerID     string     `json:"customerId,omitempty"`
	Channel        string     `json:"channel,omitempty"`
}
