package cache

import (
	"time"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// Store is the fast shared cache holding each agent's current state and
// the day-scoped metrics counters. Implementations must make IncrMetric
// atomic; callers never do read-modify-write on counter fields.
//
// GetAgentState and GetMetrics return (nil, nil) when no entry exists.
type Store interface {
	GetAgentState(agentID string) (*types.CachedAgentState, error)
	SetAgentState(agentID string, state types.CachedAgentState) error
	DeleteAgentState(agentID string) error

	// ListAgentStates enumerates all cached agent states keyed by agent ID
	ListAgentStates() (map[string]types.CachedAgentState, error)

	IncrMetric(agentID, dateKey string, field types.MetricField, delta int64) error
	GetMetrics(agentID, dateKey string) (*types.DailyMetrics, error)

	// EnsureMetrics lazily initializes the day's accumulator (with its
	// end-of-day expiry) and returns it
	EnsureMetrics(agentID, dateKey string) (*types.DailyMetrics, error)
}

// stateTTL bounds how long a current-state entry survives without being
// overwritten by a transition
const stateTTL = 24 * time.Hour

// endOfDay returns the expiry instant for a day-scoped metrics entry:
// 23:59:59 local time on the entry's own day
func endOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, now.Location())
}
