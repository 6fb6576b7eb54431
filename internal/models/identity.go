package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity is returned when an agent identity fails validation.
var ErrInvalidIdentity = errors.New("invalid agent identity")

const (
	minAgentIDLength     = 3
	minDisplayNameLength = 2
)

// AgentIdentity identifies the signed-in agent. It is immutable for the
// lifetime of a signed-in period.
type AgentIdentity struct {
	AgentID     string `json:"agentId" yaml:"agent_id"`
	DisplayName string `json:"displayName" yaml:"display_name"`
}

// Normalize returns a copy with surrounding whitespace removed.
func (a AgentIdentity) Normalize() AgentIdentity {
	return AgentIdentity{
		AgentID:     strings.TrimSpace(a.AgentID),
		DisplayName: strings.TrimSpace(a.DisplayName),
	}
}

// Validate checks the sign-in rules for agent id and display name.
func (a AgentIdentity) Validate() error {
	n := a.Normalize()
	if len([]rune(n.AgentID)) < minAgentIDLength {
		return fmt.Errorf("%w: agent id must be at least %d characters", ErrInvalidIdentity, minAgentIDLength)
	}
	if len([]rune(n.DisplayName)) < minDisplayNameLength {
		return fmt.Errorf("%w: display name must be at least %d characters", ErrInvalidIdentity, minDisplayNameLength)
	}
	return nil
}
