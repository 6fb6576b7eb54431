package session

import (
	"strings"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// User-facing status lines.
const (
	TextConnecting     = "Connecting to the customer..."
	TextConnected      = "You are now connected. Say hello!"
	TextConnectFailed  = "Connection failed. Try selecting the request again."
	TextConnectionLost = "Connection lost. Reopen the conversation if you need to continue."
	TextAgentClosed    = "You closed this chat."
	TextChatClosed     = "The chat was closed."
	TextHistoryFailed  = "Unable to load previous messages."
	TextSendFailed     = "Unable to send message."
	TextCloseFailed    = "Unable to close the conversation."
	TextJoinFailed     = "Failed to connect to the chat service."
)

// Short status labels.
const (
	LabelConnecting   = "Connecting"
	LabelActive       = "Active"
	LabelClosed       = "Closed"
	LabelDisconnected = "Disconnected"
	LabelFailed       = "Failed"
)

const customerFallback = "Customer"

// CloseReason describes why a conversation ended.
type CloseReason struct {
	ClosedBy   models.ParticipantType
	StatusText string
	Label      string
}

// ClassifyClose reports whether m is a system close event and how to present it.
// System messages without an event marker are treated as closes.
func ClassifyClose(m models.Message) (CloseReason, bool) {
	if !m.IsSystem() {
		return CloseReason{}, false
	}
	event := m.MetaString(models.MetaEvent)
	if event != "" && !strings.EqualFold(event, models.EventChatClosed) {
		return CloseReason{}, false
	}

	closedBy := models.ParticipantType(strings.ToUpper(m.MetaString(models.MetaClosedByType)))
	switch closedBy {
	case models.ParticipantCustomer:
		name := m.MetaString(models.MetaClosedByDisplayName)
		if name == "" {
			name = customerFallback
		}
		return CloseReason{
			ClosedBy:   closedBy,
			StatusText: name + " ended the chat.",
			Label:      LabelDisconnected,
		}, true
	case models.ParticipantAgent:
		return CloseReason{ClosedBy: closedBy, StatusText: TextAgentClosed, Label: LabelClosed}, true
	default:
		text := strings.TrimSpace(m.Content)
		if text == "" {
			text = TextChatClosed
		}
		return CloseReason{ClosedBy: closedBy, StatusText: text, Label: LabelClosed}, true
	}
}

// waitingText is the status line after a customer message.
func waitingText(m models.Message) string {
	return m.Sender.Name(customerFallback) + " is waiting for your reply."
}
