// Package store persists the signed-in agent identity between runs.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// ErrNoIdentity indicates nobody is signed in.
var ErrNoIdentity = errors.New("no saved identity")

// IdentityStore loads and saves the agent identity.
type IdentityStore interface {
	Load(ctx context.Context) (models.AgentIdentity, error)
	Save(ctx context.Context, identity models.AgentIdentity) error
	Clear(ctx context.Context) error
	Close() error
}
