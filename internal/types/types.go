package types

import "time"

// AgentStatus represents the current operational status of an agent
type AgentStatus string

const (
	StatusOffline       AgentStatus = "offline"
	StatusAvailable     AgentStatus = "available"
	StatusInCall        AgentStatus = "in_call"
	StatusAfterCallWork AgentStatus = "after_call_work"
	StatusOnPause       AgentStatus = "on_pause"
	StatusTraining      AgentStatus = "training"
	StatusMeeting       AgentStatus = "meeting"
)

// StatusTransitions is the directed adjacency table of allowed status
// transitions. on_pause is reachable from every non-offline status so an
// emergency pause is always possible.
var StatusTransitions = map[AgentStatus][]AgentStatus{
	StatusOffline:       {StatusAvailable, StatusTraining, StatusMeeting},
	StatusAvailable:     {StatusInCall, StatusOnPause, StatusTraining, StatusMeeting, StatusOffline},
	StatusInCall:        {StatusAvailable, StatusAfterCallWork, StatusOnPause, StatusOffline},
	StatusAfterCallWork: {StatusAvailable, StatusOnPause, StatusOffline},
	StatusOnPause:       {StatusAvailable, StatusOffline},
	StatusTraining:      {StatusAvailable, StatusOnPause, StatusOffline},
	StatusMeeting:       {StatusAvailable, StatusOnPause, StatusOffline},
}

// CanTransition reports whether a direct transition from one status to
// another is allowed. Identical from/to is a no-op, not a transition, and
// is handled before this check.
func CanTransition(from, to AgentStatus) bool {
	for _, allowed := range StatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is one of the defined agent statuses
func ValidStatus(s AgentStatus) bool {
	switch s {
	case StatusOffline, StatusAvailable, StatusInCall, StatusAfterCallWork,
		StatusOnPause, StatusTraining, StatusMeeting:
		return true
	}
	return false
}

// PauseType classifies non-call downtime, each with its own duration policy
type PauseType string

const (
	PauseBathroom    PauseType = "bathroom"
	PauseLunch       PauseType = "lunch"
	PauseBreak       PauseType = "break"
	PauseCoaching    PauseType = "coaching"
	PauseSystemIssue PauseType = "system_issue"
	PausePersonal    PauseType = "personal"
)

// PauseLimits maps each pause type to the duration after which a
// supervisor alert is raised if the pause is still running
var PauseLimits = map[PauseType]time.Duration{
	PauseBathroom:    10 * time.Minute,
	PauseBreak:       15 * time.Minute,
	PausePersonal:    30 * time.Minute,
	PauseCoaching:    60 * time.Minute,
	PauseSystemIssue: 120 * time.Minute,
	PauseLunch:       60 * time.Minute,
}

// Role represents an account role in the directory
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
)

// CachedAgentState is the ephemeral mirror of the currently active status
// record kept in the fast cache. The durable store is authoritative for
// history; this is authoritative only for current-value read speed.
type CachedAgentState struct {
	Status AgentStatus `json:"status"`
	Since  time.Time   `json:"since"`
}

// DailyMetrics is the per-agent, per-calendar-day productivity accumulator.
// Counter fields are mutated only through atomic cache increments.
type DailyMetrics struct {
	ProductiveTime    int64     `json:"productiveTime"`    // seconds
	PauseTime         int64     `json:"pauseTime"`         // seconds
	CallTime          int64     `json:"callTime"`          // seconds
	AfterCallWorkTime int64     `json:"afterCallWorkTime"` // seconds
	Calls             int64     `json:"calls"`
	Sales             int64     `json:"sales"`
	LastUpdate        time.Time `json:"lastUpdate"`
}

// MetricField names a single DailyMetrics counter for atomic increments
type MetricField string

const (
	MetricProductiveTime    MetricField = "productive_time"
	MetricPauseTime         MetricField = "pause_time"
	MetricCallTime          MetricField = "call_time"
	MetricAfterCallWorkTime MetricField = "acw_time"
	MetricCalls             MetricField = "calls"
	MetricSales             MetricField = "sales"
)
