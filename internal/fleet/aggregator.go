package fleet

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/metrics"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// DefaultPauseAlertThreshold is the pause duration after which an agent is
// flagged in the fleet snapshot
const DefaultPauseAlertThreshold = 15 * time.Minute

// Aggregator composes the directory and the cache into the supervisor
// fleet view. It is read-only and degrades per agent: one unreadable agent
// never aborts the snapshot.
type Aggregator struct {
	dir            directory.Directory
	cache          cache.Store
	logger         zerolog.Logger
	alertThreshold time.Duration
	now            func() time.Time
}

// NewAggregator creates a fleet aggregator
func NewAggregator(dir directory.Directory, cacheStore cache.Store, alertThreshold time.Duration, logger zerolog.Logger) *Aggregator {
	if alertThreshold <= 0 {
		alertThreshold = DefaultPauseAlertThreshold
	}
	return &Aggregator{
		dir:            dir,
		cache:          cacheStore,
		logger:         logger.With().Str("component", "fleet").Logger(),
		alertThreshold: alertThreshold,
		now:            time.Now,
	}
}

// FleetSnapshot builds the per-agent rows, fleet summary, and alert list
// for every agent-capable account
func (a *Aggregator) FleetSnapshot() *types.FleetSnapshot {
	now := a.now()
	dateKey := types.DateKeyFor(now)
	agents := a.dir.ListAgentCapable()

	snapshot := &types.FleetSnapshot{
		Timestamp: now,
		Agents:    make([]types.AgentSnapshot, 0, len(agents)),
		Summary: types.FleetSummary{
			StatusBreakdown: make(map[types.AgentStatus]int),
		},
		Alerts: []types.FleetAlert{},
	}

	// One prefix enumeration replaces a state read per agent. If the
	// enumeration itself fails, fall back to per-agent reads so a single
	// outage window still degrades agent by agent.
	states, statesErr := a.cache.ListAgentStates()
	if statesErr != nil {
		a.logger.Warn().Err(statesErr).Msg("failed to enumerate agent states, falling back to per-agent reads")
	}

	efficiencySum := 0
	for _, agent := range agents {
		row := a.agentRow(agent, dateKey, states, statesErr != nil)
		snapshot.Agents = append(snapshot.Agents, row)

		snapshot.Summary.StatusBreakdown[row.Status]++
		snapshot.Summary.TotalCalls += row.Metrics.Calls
		snapshot.Summary.TotalProductiveTime += row.Metrics.ProductiveTime
		efficiencySum += row.Efficiency

		if row.IsActive && row.Status == types.StatusOnPause {
			if elapsed := now.Sub(row.StatusSince); elapsed > a.alertThreshold {
				snapshot.Alerts = append(snapshot.Alerts, types.FleetAlert{
					AgentID:  agent.ID,
					Rule:     "pause_long",
					Severity: types.SeverityCritical,
					Message:  fmt.Sprintf("%s paused for %s", agent.Name, formatDuration(elapsed)),
				})
			}
		}
	}

	snapshot.Summary.TotalAgents = len(snapshot.Agents)
	if len(snapshot.Agents) > 0 {
		snapshot.Summary.AverageEfficiency = int(math.Round(float64(efficiencySum) / float64(len(snapshot.Agents))))
	}

	metrics.Get().RecordSnapshot()
	metrics.Get().UpdateFleetStats(snapshot)

	return snapshot
}

// agentRow builds one agent's row from the enumerated states and the
// agent's metrics. Any read failure produces a zeroed inactive row
// instead of an error.
func (a *Aggregator) agentRow(agent directory.Agent, dateKey string, states map[string]types.CachedAgentState, fallback bool) types.AgentSnapshot {
	row := types.AgentSnapshot{
		AgentID: agent.ID,
		Name:    agent.Name,
		Status:  types.StatusOffline,
	}

	dayMetrics, err := a.cache.EnsureMetrics(agent.ID, dateKey)
	if err != nil {
		a.logger.Warn().Err(err).Str("agent_id", agent.ID).Msg("failed to read agent metrics, reporting zeroed row")
		return row
	}

	var state *types.CachedAgentState
	if fallback {
		state, err = a.cache.GetAgentState(agent.ID)
		if err != nil {
			a.logger.Warn().Err(err).Str("agent_id", agent.ID).Msg("failed to read agent state, reporting zeroed row")
			return row
		}
	} else if cached, ok := states[agent.ID]; ok {
		state = &cached
	}

	row.IsActive = true
	row.Metrics = *dayMetrics
	row.Efficiency = Efficiency(dayMetrics.ProductiveTime, dayMetrics.PauseTime)
	if state != nil {
		row.Status = state.Status
		row.StatusSince = state.Since
	}
	return row
}

// Efficiency is productive time over total tracked time as a rounded
// percentage, 0 when nothing has been tracked yet
func Efficiency(productive, pause int64) int {
	total := productive + pause
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(productive) / float64(total) * 100))
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		return fmt.Sprintf("%dh%dm", mins/60, mins%60)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
