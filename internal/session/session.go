// Package session coordinates the agent's concurrent chat sessions.
package session

import (
	"slices"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// Session is a point-in-time view of one conversation the agent is handling.
type Session struct {
	ID           string
	Conversation *models.ConversationMetadata
	Stage        Stage
	Messages     []models.Message
	IsSending    bool
	ErrorText    string
	StatusText   string
	StatusLabel  string
}

// ComposerEnabled reports whether the agent may type into this session.
func (s Session) ComposerEnabled() bool {
	return s.Stage == StageActive && !s.IsSending
}

// CustomerName returns the customer's display name.
func (s Session) CustomerName() string {
	return s.Conversation.CustomerName(customerFallback)
}

// snapshot copies the mutable parts of a record. Caller must hold the coordinator lock.
func (r *record) snapshot() Session {
	s := Session{
		ID:          r.id,
		Stage:       r.stage,
		Messages:    slices.Clone(r.messages),
		IsSending:   r.sending,
		ErrorText:   r.errorText,
		StatusText:  r.statusText,
		StatusLabel: r.statusLabel,
	}
	if s.Messages == nil {
		s.Messages = []models.Message{}
	}
	if r.conversation != nil {
		conv := *r.conversation
		s.Conversation = &conv
	}
	return s
}
