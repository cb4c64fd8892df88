package types

import "time"

// AlertSeverity represents the severity of a supervisor alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// FleetAlert is a human-readable alert attached to a fleet snapshot
type FleetAlert struct {
	AgentID  string        `json:"agentId"`
	Rule     string        `json:"rule"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// AgentSnapshot is one per-agent row in a fleet snapshot
type AgentSnapshot struct {
	AgentID     string       `json:"agentId"`
	Name        string       `json:"name"`
	Status      AgentStatus  `json:"status"`
	StatusSince time.Time    `json:"statusSince"`
	IsActive    bool         `json:"isActive"` // false when the agent's state could not be read
	Metrics     DailyMetrics `json:"metrics"`
	Efficiency  int          `json:"efficiency"` // 0-100
}

// FleetSummary contains fleet-wide aggregates for a snapshot
type FleetSummary struct {
	TotalAgents         int                 `json:"totalAgents"`
	StatusBreakdown     map[AgentStatus]int `json:"statusBreakdown"`
	TotalCalls          int64               `json:"totalCalls"`
	AverageEfficiency   int                 `json:"averageEfficiency"`
	TotalProductiveTime int64               `json:"totalProductiveTime"` // seconds
}

// FleetSnapshot is the aggregated supervisor view: per-agent rows, a
// summary, and the current alert list
type FleetSnapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Agents    []AgentSnapshot `json:"agents"`
	Summary   FleetSummary    `json:"summary"`
	Alerts    []FleetAlert    `json:"alerts"`
}
