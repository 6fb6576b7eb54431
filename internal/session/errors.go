package session

import (
	"errors"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// Sentinel errors for coordinator operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCapacityExceeded indicates the agent already holds the maximum number of sessions.
	ErrCapacityExceeded = errors.New("session capacity reached")

	// ErrAlreadyPresent indicates the conversation is already open or being admitted.
	ErrAlreadyPresent = errors.New("conversation already open")

	// ErrSessionNotFound indicates no session exists for the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded indicates the session no longer accepts sends or closes.
	ErrSessionEnded = errors.New("session ended")

	// ErrNotConnected indicates the session has not finished joining yet.
	ErrNotConnected = errors.New("session not connected")

	// ErrEmptyContent indicates a send with nothing to say.
	ErrEmptyContent = errors.New("message is empty")

	// ErrSendInProgress indicates the previous send has not been acknowledged yet.
	ErrSendInProgress = errors.New("send already in progress")

	// ErrAdmissionCancelled indicates the coordinator was torn down while admitting.
	ErrAdmissionCancelled = errors.New("admission cancelled")

	// ErrInvalidIdentity is returned for identities that fail validation.
	ErrInvalidIdentity = models.ErrInvalidIdentity
)
