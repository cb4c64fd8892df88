package engine

import (
	"errors"
	"fmt"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// ErrAgentNotFound is returned when the agent ID is unknown to the directory
var ErrAgentNotFound = errors.New("agent not found")

// ErrCacheUnavailable marks a transient cache failure. The whole operation
// is aborted with no partial credit; callers may retry.
var ErrCacheUnavailable = errors.New("cache unavailable")

// InvalidTransitionError is returned when the requested transition is not
// in the adjacency table
type InvalidTransitionError struct {
	From types.AgentStatus
	To   types.AgentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// ErrInvalidStatus is returned when the requested status is not a defined one
var ErrInvalidStatus = errors.New("invalid status")
