package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for backend responses.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConflict indicates the conversation was already taken by another agent.
	// Accept calls that fail with it must not be retried.
	ErrConflict = errors.New("conversation already assigned")

	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrGone indicates the conversation is closed and can no longer be joined.
	ErrGone = errors.New("conversation gone")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, msg)
}

// Unwrap maps well-known statuses to the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	default:
		return nil
	}
}

// Describe turns err into text suitable for showing to the agent.
// Backend-provided messages win; fallback is used when nothing readable is left.
func Describe(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
