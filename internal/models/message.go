package models

import (
	"strings"
	"time"
)

// MessageType classifies chat messages. Unknown types are passed through as-is.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
)

// ParticipantType is the role of a participant in a conversation.
type ParticipantType string

const (
	ParticipantCustomer ParticipantType = "CUSTOMER"
	ParticipantAgent    ParticipantType = "AGENT"
	ParticipantSystem   ParticipantType = "SYSTEM"
)

// Metadata keys carried by SYSTEM messages that announce a closed chat.
const (
	MetaEvent               = "event"
	MetaClosedByType        = "closedByType"
	MetaClosedByDisplayName = "closedByDisplayName"

	EventChatClosed = "CHAT_CLOSED"
)

// Participant is a customer, agent or system actor in a conversation.
type Participant struct {
	ID          string          `json:"id"`
	Type        ParticipantType `json:"type"`
	DisplayName string          `json:"displayName,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Name returns the trimmed display name, or fallback when it is blank.
func (p *Participant) Name(fallback string) string {
	if p == nil {
		return fallback
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return fallback
}

// Message is a single immutable chat message. ID is unique per conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Type           MessageType    `json:"type"`
	Sender         *Participant   `json:"sender,omitempty"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// IsSystem reports whether the message type is SYSTEM, case-insensitively.
func (m Message) IsSystem() bool {
	return strings.EqualFold(string(m.Type), string(MessageSystem))
}

// SenderType returns the upper-cased sender type, or "" when there is no sender.
func (m Message) SenderType() ParticipantType {
	if m.Sender == nil {
		return ""
	}
	return ParticipantType(strings.ToUpper(string(m.Sender.Type)))
}

// MetaString returns a string metadata value, or "" when absent or not a string.
func (m Message) MetaString(key string) string {
	return MetaString(m.Metadata, key)
}
