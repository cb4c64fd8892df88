package pause

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/broadcast"
	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/metrics"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// ErrAlreadyPaused is returned when an active pause already exists
var ErrAlreadyPaused = errors.New("agent already has an active pause")

// ErrNoActivePause is returned when ending a pause that does not exist
var ErrNoActivePause = errors.New("agent has no active pause")

// ErrInvalidPauseType is returned for an unknown pause type
var ErrInvalidPauseType = errors.New("invalid pause type")

// Manager enforces the one-active-pause invariant and per-type duration
// limits. It exclusively owns PauseRecord writes and delegates all status
// changes to the engine.
//
// Duration checks are one-shot in-process timers; a restart drops pending
// checks. Alerts are advisory, so this is a known accepted limitation.
type Manager struct {
	engine      *engine.Engine
	store       storage.Store
	broadcaster broadcast.Broadcaster
	logger      zerolog.Logger
	limits      map[types.PauseType]time.Duration
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a pause manager with the standard per-type limits
func NewManager(eng *engine.Engine, store storage.Store, broadcaster broadcast.Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		engine:      eng,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "pause").Logger(),
		limits:      types.PauseLimits,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing pause operations for one agent.
// The check-then-create sequence must not interleave or two concurrent
// starts would both pass the active-pause check.
func (m *Manager) lockFor(agentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[agentID] = lock
	}
	return lock
}

// StartPause opens a pause of the given type, moving the agent to
// on_pause and arming the duration check
func (m *Manager) StartPause(agentID string, pauseType types.PauseType, reason string, metadata map[string]string) (*types.PauseRecord, error) {
	limit, ok := m.limits[pauseType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPauseType, pauseType)
	}

	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.store.FindActivePauseRecord(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active pause: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrAlreadyPaused, agentID, active.PauseType)
	}

	if _, err := m.engine.ChangeStatus(agentID, types.StatusOnPause, reason, metadata); err != nil {
		return nil, err
	}

	now := m.now()
	record := types.PauseRecord{
		AgentID:   agentID,
		PauseID:   uuid.New().String(),
		DateKey:   types.DateKeyFor(now),
		PauseType: pauseType,
		Reason:    reason,
		StartTime: now,
		IsActive:  true,
	}
	if err := m.store.SavePauseRecord(record); err != nil {
		return nil, fmt.Errorf("failed to save pause record: %w", err)
	}

	time.AfterFunc(limit, func() {
		m.checkDuration(agentID, record.PauseID, limit)
	})

	metrics.Get().RecordPauseStarted()
	m.logger.Info().
		Str("agent_id", agentID).
		Str("pause_type", string(pauseType)).
		Dur("limit", limit).
		Msg("pause started")

	m.broadcaster.Publish(broadcast.EventPauseStarted, types.PauseEvent{
		AgentID:   agentID,
		PauseID:   record.PauseID,
		PauseType: pauseType,
		Reason:    reason,
		StartTime: now,
	})

	return &record, nil
}

// EndPause closes the agent's active pause and returns them to available
func (m *Manager) EndPause(agentID string) (*types.PauseRecord, error) {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.store.FindActivePauseRecord(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active pause: %w", err)
	}
	if active == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActivePause, agentID)
	}

	now := m.now()
	active.EndTime = &now
	active.Duration = int64(now.Sub(active.StartTime).Seconds())
	active.IsActive = false
	if err := m.store.SavePauseRecord(*active); err != nil {
		return nil, fmt.Errorf("failed to close pause record: %w", err)
	}

	if _, err := m.engine.ChangeStatus(agentID, types.StatusAvailable, "pause_ended", nil); err != nil {
		return nil, err
	}

	metrics.Get().RecordPauseEnded()
	m.logger.Info().
		Str("agent_id", agentID).
		Str("pause_type", string(active.PauseType)).
		Int64("duration", active.Duration).
		Msg("pause ended")

	m.broadcaster.Publish(broadcast.EventPauseEnded, types.PauseEvent{
		AgentID:   agentID,
		PauseID:   active.PauseID,
		PauseType: active.PauseType,
		Reason:    active.Reason,
		StartTime: active.StartTime,
		EndTime:   active.EndTime,
		Duration:  active.Duration,
	})

	return active, nil
}

// checkDuration fires once at the pause's limit. If the pause is still
// running it emits a single supervisor alert; alertSent makes re-checks
// idempotent.
func (m *Manager) checkDuration(agentID, pauseID string, limit time.Duration) {
	// Same lock as EndPause so the re-read-then-save here cannot revive a
	// record that a concurrent end is closing
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.FindPauseRecord(agentID, pauseID)
	if err != nil {
		m.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("pause_id", pauseID).
			Msg("failed to re-read pause record for duration check")
		return
	}
	if record == nil || !record.IsActive || record.AlertSent {
		return
	}

	elapsed := int64(m.now().Sub(record.StartTime).Seconds())
	if elapsed < int64(limit.Seconds()) {
		return
	}

	record.AlertSent = true
	if err := m.store.SavePauseRecord(*record); err != nil {
		m.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("pause_id", pauseID).
			Msg("failed to mark pause alert sent")
		return
	}

	message := fmt.Sprintf("agent %s exceeded %s pause limit (%s elapsed, limit %s)",
		agentID, record.PauseType, formatSeconds(elapsed), limit)

	metrics.Get().RecordPauseAlert()
	m.logger.Warn().
		Str("agent_id", agentID).
		Str("pause_type", string(record.PauseType)).
		Int64("elapsed", elapsed).
		Msg("pause duration limit exceeded")

	m.broadcaster.Publish(broadcast.EventPauseAlert, types.PauseAlertEvent{
		AgentID:   agentID,
		PauseID:   pauseID,
		PauseType: record.PauseType,
		Elapsed:   elapsed,
		Limit:     int64(limit.Seconds()),
		Message:   message,
		Timestamp: m.now(),
	})
}

func formatSeconds(secs int64) string {
	mins := secs / 60
	if mins >= 60 {
		return fmt.Sprintf("%dh%dm", mins/60, mins%60)
	}
	return fmt.Sprintf("%dm%ds", mins, secs%60)
}
