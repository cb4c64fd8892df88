package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/broadcast"
	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/metrics"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// DefaultACWTimeout is how long an agent stays in after_call_work before
// being returned to available automatically
const DefaultACWTimeout = 180 * time.Second

// Engine is the status state machine. It exclusively owns writes to
// AgentStatusRecord and CachedAgentState. Transitions for the same agent
// are serialized by a per-agent mutex so the read-credit-apply sequence
// never interleaves.
type Engine struct {
	dir         directory.Directory
	cache       cache.Store
	store       storage.Store
	broadcaster broadcast.Broadcaster
	logger      zerolog.Logger
	acwTimeout  time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	timersMu  sync.Mutex
	acwTimers map[string]*time.Timer

	now func() time.Time
}

// New creates a new Engine
func New(dir directory.Directory, cacheStore cache.Store, store storage.Store, broadcaster broadcast.Broadcaster, acwTimeout time.Duration, logger zerolog.Logger) *Engine {
	if acwTimeout <= 0 {
		acwTimeout = DefaultACWTimeout
	}
	return &Engine{
		dir:         dir,
		cache:       cacheStore,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "engine").Logger(),
		acwTimeout:  acwTimeout,
		locks:       make(map[string]*sync.Mutex),
		acwTimers:   make(map[string]*time.Timer),
		now:         time.Now,
	}
}

// lockFor returns the mutex serializing transitions for one agent
func (e *Engine) lockFor(agentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[agentID] = lock
	}
	return lock
}

// ChangeStatus validates and applies a status transition for an agent.
// Re-requesting the current status is an idempotent no-op that returns the
// existing active record. Any cache failure aborts the whole operation
// with ErrCacheUnavailable so counters are never partially credited.
func (e *Engine) ChangeStatus(agentID string, newStatus types.AgentStatus, reason string, metadata map[string]string) (*types.AgentStatusRecord, error) {
	m := metrics.Get()

	if !types.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, newStatus)
	}

	if _, ok := e.dir.GetAgent(agentID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	cached, err := e.cache.GetAgentState(agentID)
	if err != nil {
		m.RecordTransitionError()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	current, err := e.store.FindActiveStatusRecord(agentID)
	if err != nil {
		m.RecordTransitionError()
		return nil, fmt.Errorf("failed to read active status record: %w", err)
	}

	// Idempotent re-confirmation: no new record, no re-credit
	if current != nil && current.Status == newStatus {
		m.RecordTransitionNoOp()
		return current, nil
	}

	previous := types.StatusOffline
	if current != nil {
		previous = current.Status
	}

	if !types.CanTransition(previous, newStatus) {
		m.RecordTransitionRejected()
		return nil, &InvalidTransitionError{From: previous, To: newStatus}
	}

	// Any accepted transition supersedes a pending ACW auto-return
	e.cancelACWTimer(agentID)

	now := e.now()
	dateKey := types.DateKeyFor(now)

	// Credit elapsed time to the previous status's buckets before the
	// cached state is overwritten; losing this silently underreports time
	if cached != nil {
		elapsed := int64(now.Sub(cached.Since).Seconds())
		if elapsed > 0 {
			if err := e.creditElapsed(agentID, dateKey, cached.Status, elapsed); err != nil {
				m.RecordTransitionError()
				return nil, err
			}
		}
	}

	if current != nil {
		current.EndTime = &now
		current.IsActive = false
		if err := e.store.SaveStatusRecord(*current); err != nil {
			m.RecordTransitionError()
			return nil, fmt.Errorf("failed to close status record: %w", err)
		}
	}

	record := types.AgentStatusRecord{
		AgentID:        agentID,
		RecordID:       uuid.New().String(),
		DateKey:        dateKey,
		Status:         newStatus,
		PreviousStatus: previous,
		Reason:         reason,
		StartTime:      now,
		IsActive:       true,
		Metadata:       metadata,
	}
	if err := e.store.SaveStatusRecord(record); err != nil {
		m.RecordTransitionError()
		return nil, fmt.Errorf("failed to save status record: %w", err)
	}

	if err := e.cache.SetAgentState(agentID, types.CachedAgentState{Status: newStatus, Since: now}); err != nil {
		m.RecordTransitionError()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if newStatus == types.StatusInCall {
		if err := e.cache.IncrMetric(agentID, dateKey, types.MetricCalls, 1); err != nil {
			m.RecordTransitionError()
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}

	if newStatus == types.StatusAfterCallWork {
		e.scheduleACWTimer(agentID)
	}

	m.RecordTransition()
	e.logger.Debug().
		Str("agent_id", agentID).
		Str("from", string(previous)).
		Str("to", string(newStatus)).
		Str("reason", reason).
		Msg("status changed")

	e.publishStatusChanged(agentID, previous, newStatus, reason, metadata, now, dateKey)

	return &record, nil
}

// creditElapsed adds elapsed seconds to the counter buckets that absorb
// time spent in the given previous status. Time in a call is credited both
// to callTime and productiveTime; this double-counting matches the
// reporting the rest of the system is built on.
func (e *Engine) creditElapsed(agentID, dateKey string, previous types.AgentStatus, elapsed int64) error {
	var fields []types.MetricField

	switch previous {
	case types.StatusAvailable, types.StatusTraining, types.StatusMeeting:
		fields = []types.MetricField{types.MetricProductiveTime}
	case types.StatusAfterCallWork:
		fields = []types.MetricField{types.MetricAfterCallWorkTime, types.MetricProductiveTime}
	case types.StatusInCall:
		fields = []types.MetricField{types.MetricCallTime, types.MetricProductiveTime}
	case types.StatusOnPause:
		fields = []types.MetricField{types.MetricPauseTime}
	default:
		return nil
	}

	for _, field := range fields {
		if err := e.cache.IncrMetric(agentID, dateKey, field, elapsed); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}
	return nil
}

// scheduleACWTimer arms the automatic after_call_work -> available return
func (e *Engine) scheduleACWTimer(agentID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if timer, ok := e.acwTimers[agentID]; ok {
		timer.Stop()
	}
	e.acwTimers[agentID] = time.AfterFunc(e.acwTimeout, func() {
		e.timersMu.Lock()
		delete(e.acwTimers, agentID)
		e.timersMu.Unlock()

		if _, err := e.ChangeStatus(agentID, types.StatusAvailable, "acw_timeout", nil); err != nil {
			// The agent may have moved on between the timer firing and the
			// lock being acquired
			e.logger.Debug().Err(err).Str("agent_id", agentID).Msg("acw auto-return not applied")
		}
	})
}

// cancelACWTimer disarms a pending ACW auto-return, if any
func (e *Engine) cancelACWTimer(agentID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if timer, ok := e.acwTimers[agentID]; ok {
		timer.Stop()
		delete(e.acwTimers, agentID)
	}
}

func (e *Engine) publishStatusChanged(agentID string, previous, newStatus types.AgentStatus, reason string, metadata map[string]string, now time.Time, dateKey string) {
	snapshot, err := e.cache.GetMetrics(agentID, dateKey)
	if err != nil {
		// The transition itself succeeded; the event just goes out without
		// a metrics snapshot
		e.logger.Warn().Err(err).Str("agent_id", agentID).Msg("failed to read metrics for event")
		snapshot = nil
	}

	e.broadcaster.Publish(broadcast.EventStatusChanged, types.StatusChangedEvent{
		AgentID:        agentID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		Reason:         reason,
		Timestamp:      now,
		Metadata:       metadata,
		Metrics:        snapshot,
	})
	metrics.Get().RecordEventPublished()
}

// GetCurrentMetrics returns the agent's day-scoped accumulator, lazily
// initializing it on first use
func (e *Engine) GetCurrentMetrics(agentID string) (*types.DailyMetrics, error) {
	if _, ok := e.dir.GetAgent(agentID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	m, err := e.cache.EnsureMetrics(agentID, types.DateKeyFor(e.now()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return m, nil
}

// ResetAgent drops the agent's cached state so the next transition starts
// from the durable record alone. Pending ACW auto-returns are disarmed.
func (e *Engine) ResetAgent(agentID string) error {
	if _, ok := e.dir.GetAgent(agentID); !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	e.cancelACWTimer(agentID)
	if err := e.cache.DeleteAgentState(agentID); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	e.logger.Info().Str("agent_id", agentID).Msg("cached agent state reset")
	return nil
}

// RecordSale credits a sale to the agent's daily counters. Called by the
// disposition handling outside this engine.
func (e *Engine) RecordSale(agentID string) error {
	if _, ok := e.dir.GetAgent(agentID); !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err := e.cache.IncrMetric(agentID, types.DateKeyFor(e.now()), types.MetricSales, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
