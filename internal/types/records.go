package types

import "time"

// AgentStatusRecord is one durable row per status interval. At most one
// record per agent has IsActive=true; it is closed (EndTime set) when a
// new status supersedes it.
type AgentStatusRecord struct {
	AgentID        string            `json:"agentId" dynamodbav:"AgentID"`   // partition key
	RecordID       string            `json:"recordId" dynamodbav:"RecordID"` // sort key
	DateKey        string            `json:"dateKey" dynamodbav:"DateKey"`   // YYYY-MM-DD
	Status         AgentStatus       `json:"status" dynamodbav:"Status"`
	PreviousStatus AgentStatus       `json:"previousStatus" dynamodbav:"PreviousStatus"`
	Reason         string            `json:"reason" dynamodbav:"Reason"`
	StartTime      time.Time         `json:"startTime" dynamodbav:"StartTime"`
	EndTime        *time.Time        `json:"endTime,omitempty" dynamodbav:"EndTime,omitempty"`
	IsActive       bool              `json:"isActive" dynamodbav:"IsActive"`
	Metadata       map[string]string `json:"metadata,omitempty" dynamodbav:"Metadata,omitempty"`
}

// PauseRecord is one durable row per pause. At most one active pause per
// agent; an active pause implies current status on_pause.
type PauseRecord struct {
	AgentID            string     `json:"agentId" dynamodbav:"AgentID"` // partition key
	PauseID            string     `json:"pauseId" dynamodbav:"PauseID"` // sort key
	DateKey            string     `json:"dateKey" dynamodbav:"DateKey"`
	PauseType          PauseType  `json:"pauseType" dynamodbav:"PauseType"`
	Reason             string     `json:"reason" dynamodbav:"Reason"`
	StartTime          time.Time  `json:"startTime" dynamodbav:"StartTime"`
	EndTime            *time.Time `json:"endTime,omitempty" dynamodbav:"EndTime,omitempty"`
	Duration           int64      `json:"duration" dynamodbav:"Duration"` // seconds, set on close
	IsActive           bool       `json:"isActive" dynamodbav:"IsActive"`
	SupervisorApproved bool       `json:"supervisorApproved" dynamodbav:"SupervisorApproved"`
	AlertSent          bool       `json:"alertSent" dynamodbav:"AlertSent"`
}

// WorkSessionRecord is one durable row per login-to-logout span. At most
// one active session per agent. The counter fields are a snapshot of the
// agent's DailyMetrics, written only by the sync job (and the final sync
// at logout).
type WorkSessionRecord struct {
	AgentID           string            `json:"agentId" dynamodbav:"AgentID"`     // partition key
	SessionID         string            `json:"sessionId" dynamodbav:"SessionID"` // sort key
	DateKey           string            `json:"dateKey" dynamodbav:"DateKey"`
	CampaignID        string            `json:"campaignId" dynamodbav:"CampaignID"`
	LoginTime         time.Time         `json:"loginTime" dynamodbav:"LoginTime"`
	LogoutTime        *time.Time        `json:"logoutTime,omitempty" dynamodbav:"LogoutTime,omitempty"`
	IsActive          bool              `json:"isActive" dynamodbav:"IsActive"`
	ProductiveTime    int64             `json:"productiveTime" dynamodbav:"ProductiveTime"`
	PauseTime         int64             `json:"pauseTime" dynamodbav:"PauseTime"`
	CallTime          int64             `json:"callTime" dynamodbav:"CallTime"`
	AfterCallWorkTime int64             `json:"afterCallWorkTime" dynamodbav:"AfterCallWorkTime"`
	Calls             int64             `json:"calls" dynamodbav:"Calls"`
	Sales             int64             `json:"sales" dynamodbav:"Sales"`
	MetricsSyncedAt   *time.Time        `json:"metricsSyncedAt,omitempty" dynamodbav:"MetricsSyncedAt,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty" dynamodbav:"Metadata,omitempty"`
}

// ApplyMetrics copies a DailyMetrics snapshot into the session's counter fields
func (s *WorkSessionRecord) ApplyMetrics(m DailyMetrics, at time.Time) {
	s.ProductiveTime = m.ProductiveTime
	s.PauseTime = m.PauseTime
	s.CallTime = m.CallTime
	s.AfterCallWorkTime = m.AfterCallWorkTime
	s.Calls = m.Calls
	s.Sales = m.Sales
	s.MetricsSyncedAt = &at
}

// DateKeyFor formats a time as the YYYY-MM-DD partition/date key
func DateKeyFor(t time.Time) string {
	return t.Format("2006-01-02")
}
