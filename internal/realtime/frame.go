// Package realtime implements the agent's push channels to the live-chat backend:
// one Connection per conversation and one QueueFeed per agent.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Event names carried in Frame.Event.
const (
	EventSystem        = "system:event"
	EventMessage       = "chat:message"
	EventError         = "system:error"
	EventAck           = "ack"
	EventQueueSnapshot = "queue:snapshot"
)

// Frame is one JSON message on the websocket.
type Frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data into a frame for event.
func NewFrame(event, ackID string, data any) (Frame, error) {
	f := Frame{Event: event, AckID: ackID}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	f.Data = raw
	return f, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Event, err)
	}
	return nil
}

// OutboundMessage is the payload of a chat:message sent by the agent.
type OutboundMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

// ErrorPayload is the payload of system:error frames and rejected acks.
type ErrorPayload struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns whichever field carries the error text.
func (p ErrorPayload) Text() string {
	if p.Error != "" {
		return p.Error
	}
	return p.Message
}
