package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for real-time channels.
var (
	// ErrNotConnected indicates a send before the handshake completed or after disconnect.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed indicates the channel terminated while an operation was pending.
	ErrClosed = errors.New("connection closed")

	// ErrHandshakeTimeout indicates the backend never confirmed the join.
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

// SendError is a send the backend acknowledged with an error.
type SendError struct {
	Reason string
}

func (e *SendError) Error() string {
	if e.Reason == "" {
		return "message rejected"
	}
	return fmt.Sprintf("message rejected: %s", e.Reason)
}

// ConnectError is a failed attempt to join a conversation.
// Reason holds the backend's explanation when it sent one.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("connect: %s: %v", e.Reason, e.Err)
	case e.Reason != "":
		return "connect: " + e.Reason
	case e.Err != nil:
		return fmt.Sprintf("connect: %v", e.Err)
	default:
		return "connect failed"
	}
}

func (e *ConnectError) Unwrap() error { return e.Err }
