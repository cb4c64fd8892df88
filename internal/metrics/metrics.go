package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Transition metrics
	TransitionsTotal      int64
	TransitionsRejected   int64
	TransitionNoOpsTotal  int64
	TransitionErrorsTotal int64

	// Pause metrics
	PausesStartedTotal int64
	PausesEndedTotal   int64
	PauseAlertsTotal   int64

	// Session metrics
	SessionsStartedTotal int64
	SessionsEndedTotal   int64

	// Sync job metrics
	SyncCyclesTotal   int64
	SyncSkipsTotal    int64
	SyncErrorsTotal   int64
	SyncedAgentsTotal int64
	lastSyncDuration  time.Duration

	// Broadcast metrics
	EventsPublishedTotal int64
	SnapshotsTotal       int64

	// Fleet distribution (updated on each snapshot)
	agentsByStatus map[types.AgentStatus]int
	totalAgents    int

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			agentsByStatus:    make(map[types.AgentStatus]int),
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordTransition increments the accepted transition counter
func (m *Metrics) RecordTransition() {
	m.mu.Lock()
	m.TransitionsTotal++
	m.mu.Unlock()
}

// RecordTransitionRejected increments the invalid-transition counter
func (m *Metrics) RecordTransitionRejected() {
	m.mu.Lock()
	m.TransitionsRejected++
	m.mu.Unlock()
}

// RecordTransitionNoOp increments the idempotent re-confirmation counter
func (m *Metrics) RecordTransitionNoOp() {
	m.mu.Lock()
	m.TransitionNoOpsTotal++
	m.mu.Unlock()
}

// RecordTransitionError increments the infrastructure-failure counter
func (m *Metrics) RecordTransitionError() {
	m.mu.Lock()
	m.TransitionErrorsTotal++
	m.mu.Unlock()
}

// RecordPauseStarted increments the pause start counter
func (m *Metrics) RecordPauseStarted() {
	m.mu.Lock()
	m.PausesStartedTotal++
	m.mu.Unlock()
}

// RecordPauseEnded increments the pause end counter
func (m *Metrics) RecordPauseEnded() {
	m.mu.Lock()
	m.PausesEndedTotal++
	m.mu.Unlock()
}

// RecordPauseAlert increments the pause duration alert counter
func (m *Metrics) RecordPauseAlert() {
	m.mu.Lock()
	m.PauseAlertsTotal++
	m.mu.Unlock()
}

// RecordSessionStarted increments the session start counter
func (m *Metrics) RecordSessionStarted() {
	m.mu.Lock()
	m.SessionsStartedTotal++
	m.mu.Unlock()
}

// RecordSessionEnded increments the session end counter
func (m *Metrics) RecordSessionEnded() {
	m.mu.Lock()
	m.SessionsEndedTotal++
	m.mu.Unlock()
}

// RecordSyncCycle records a completed sync run
func (m *Metrics) RecordSyncCycle(duration time.Duration, synced int) {
	m.mu.Lock()
	m.SyncCyclesTotal++
	m.SyncedAgentsTotal += int64(synced)
	m.lastSyncDuration = duration
	m.mu.Unlock()
}

// RecordSyncSkip records a sync run skipped because the previous one is
// still executing
func (m *Metrics) RecordSyncSkip() {
	m.mu.Lock()
	m.SyncSkipsTotal++
	m.mu.Unlock()
}

// RecordSyncError increments the per-agent sync failure counter
func (m *Metrics) RecordSyncError() {
	m.mu.Lock()
	m.SyncErrorsTotal++
	m.mu.Unlock()
}

// RecordEventPublished increments the broadcast event counter
func (m *Metrics) RecordEventPublished() {
	m.mu.Lock()
	m.EventsPublishedTotal++
	m.mu.Unlock()
}

// RecordSnapshot increments the fleet snapshot counter
func (m *Metrics) RecordSnapshot() {
	m.mu.Lock()
	m.SnapshotsTotal++
	m.mu.Unlock()
}

// UpdateFleetStats updates the status distribution gauges from a snapshot
func (m *Metrics) UpdateFleetStats(snapshot *types.FleetSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agentsByStatus = make(map[types.AgentStatus]int)
	m.totalAgents = len(snapshot.Agents)
	for _, agent := range snapshot.Agents {
		m.agentsByStatus[agent.Status]++
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("wfm_uptime_seconds", time.Since(m.startTime).Seconds())

		// Transition metrics
		write("wfm_transitions_total", m.TransitionsTotal)
		write("wfm_transitions_rejected_total", m.TransitionsRejected)
		write("wfm_transition_noops_total", m.TransitionNoOpsTotal)
		write("wfm_transition_errors_total", m.TransitionErrorsTotal)

		// Pause metrics
		write("wfm_pauses_started_total", m.PausesStartedTotal)
		write("wfm_pauses_ended_total", m.PausesEndedTotal)
		write("wfm_pause_alerts_total", m.PauseAlertsTotal)

		// Session metrics
		write("wfm_sessions_started_total", m.SessionsStartedTotal)
		write("wfm_sessions_ended_total", m.SessionsEndedTotal)

		// Sync job metrics
		write("wfm_sync_cycles_total", m.SyncCyclesTotal)
		write("wfm_sync_skips_total", m.SyncSkipsTotal)
		write("wfm_sync_errors_total", m.SyncErrorsTotal)
		write("wfm_synced_agents_total", m.SyncedAgentsTotal)
		write("wfm_sync_duration_seconds", m.lastSyncDuration.Seconds())

		// Broadcast metrics
		write("wfm_events_published_total", m.EventsPublishedTotal)
		write("wfm_snapshots_total", m.SnapshotsTotal)

		// Fleet distribution
		write("wfm_agents_total", m.totalAgents)
		for status, count := range m.agentsByStatus {
			write("wfm_agents_by_status", count, "status", string(status))
		}

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("wfm_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
