package types

import "time"

// StatusChangedEvent is the payload published on every accepted transition
type StatusChangedEvent struct {
	AgentID        string            `json:"agentId"`
	PreviousStatus AgentStatus       `json:"previousStatus"`
	NewStatus      AgentStatus       `json:"newStatus"`
	Reason         string            `json:"reason,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Metrics        *DailyMetrics     `json:"metrics,omitempty"`
}

// PauseEvent is the payload for pause start/end notifications
type PauseEvent struct {
	AgentID   string     `json:"agentId"`
	PauseID   string     `json:"pauseId"`
	PauseType PauseType  `json:"pauseType"`
	Reason    string     `json:"reason,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int64      `json:"duration,omitempty"` // seconds, set on end
}

// PauseAlertEvent is the payload for a pause duration limit alert
type PauseAlertEvent struct {
	AgentID   string    `json:"agentId"`
	PauseID   string    `json:"pauseId"`
	PauseType PauseType `json:"pauseType"`
	Elapsed   int64     `json:"elapsed"` // seconds
	Limit     int64     `json:"limit"`   // seconds
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEvent is the payload for session start/end notifications
type SessionEvent struct {
	AgentID    string     `json:"agentId"`
	SessionID  string     `json:"sessionId"`
	CampaignID string     `json:"campaignId,omitempty"`
	LoginTime  time.Time  `json:"loginTime"`
	LogoutTime *time.Time `json:"logoutTime,omitempty"`
}
