package session

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

// ErrSessionAlreadyActive is returned when starting a session while one exists
var ErrSessionAlreadyActive = errors.New("agent already has an active work session")

// ErrNoActiveSession is returned when ending a session that does not exist
var ErrNoActiveSession = errors.New("agent has no active work session")

// MetricsSyncer performs the final cache-to-durable metrics write before a
// session is closed
type MetricsSyncer interface {
	SyncOne(agentID string) error
}

// PauseCloser ends an agent's active pause. Logout must close any open
// pause or the agent comes back to AlreadyPaused on the next login.
type PauseCloser interface {
	EndPause(agentID string) (*types.PauseRecord, error)
}

// Manager enforces the one-active-session invariant. It exclusively owns
// WorkSessionRecord lifecycle writes; the sync job owns the counter fields.
type Manager struct {
	engine      *engine.Engine
	store       storage.Store
	syncer      MetricsSyncer
	pauses      PauseCloser
	broadcaster broadcast.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a work session manager
func NewManager(eng *engine.Engine, store storage.Store, syncer MetricsSyncer, pauses PauseCloser, broadcaster broadcast.Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		engine:      eng,
		store:       store,
		syncer:      syncer,
		pauses:      pauses,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "session").Logger(),
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing session operations for one agent.
// Without it two concurrent logins both pass the active-session check.
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

// StartSession opens a work session and brings the agent online as available
func (m *Manager) StartSession(agentID, campaignID string, metadata map[string]string) (*types.WorkSessionRecord, error) {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.store.FindActiveWorkSession(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyActive, agentID)
	}

	now := m.now()
	record := types.WorkSessionRecord{
		AgentID:    agentID,
		SessionID:  uuid.New().String(),
		DateKey:    types.DateKeyFor(now),
		CampaignID: campaignID,
		LoginTime:  now,
		IsActive:   true,
		Metadata:   metadata,
	}
	if err := m.store.SaveWorkSession(record); err != nil {
		return nil, fmt.Errorf("failed to save work session: %w", err)
	}

	if _, err := m.engine.ChangeStatus(agentID, types.StatusAvailable, "login", metadata); err != nil {
		return nil, err
	}

	metrics.Get().RecordSessionStarted()
	m.logger.Info().
		Str("agent_id", agentID).
		Str("session_id", record.SessionID).
		Str("campaign_id", campaignID).
		Msg("work session started")

	m.broadcaster.Publish(broadcast.EventSessionStart, types.SessionEvent{
		AgentID:    agentID,
		SessionID:  record.SessionID,
		CampaignID: campaignID,
		LoginTime:  now,
	})

	return &record, nil
}

// EndSession closes any active pause, syncs the day's metrics into the
// session one last time, optionally merges caller-supplied final counters,
// closes the session, and takes the agent offline
func (m *Manager) EndSession(agentID string, endMetrics *types.DailyMetrics) (*types.WorkSessionRecord, error) {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.store.FindActiveWorkSession(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if active == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveSession, agentID)
	}

	// A pause left active would outlive the session: the agent's next login
	// hits AlreadyPaused and the pending duration check alerts for someone
	// who already went home
	pauseRec, err := m.store.FindActivePauseRecord(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active pause: %w", err)
	}
	if pauseRec != nil {
		if _, err := m.pauses.EndPause(agentID); err != nil {
			return nil, fmt.Errorf("failed to end active pause at logout: %w", err)
		}
		m.logger.Info().
			Str("agent_id", agentID).
			Str("pause_type", string(pauseRec.PauseType)).
			Msg("active pause closed at logout")
	}

	// Final write precedes closure; a failed sync must not strand the
	// agent in a session they are trying to leave
	if err := m.syncer.SyncOne(agentID); err != nil {
		m.logger.Error().Err(err).Str("agent_id", agentID).Msg("final metrics sync failed, closing session anyway")
	}

	// Re-read so the closed record carries the freshly synced counters
	active, err = m.store.FindActiveWorkSession(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read session after final sync: %w", err)
	}
	if active == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveSession, agentID)
	}

	now := m.now()
	if endMetrics != nil {
		active.ApplyMetrics(*endMetrics, now)
	}
	active.LogoutTime = &now
	active.IsActive = false
	if err := m.store.SaveWorkSession(*active); err != nil {
		return nil, fmt.Errorf("failed to close work session: %w", err)
	}

	if _, err := m.engine.ChangeStatus(agentID, types.StatusOffline, "logout", nil); err != nil {
		return nil, err
	}

	metrics.Get().RecordSessionEnded()
	m.logger.Info().
		Str("agent_id", agentID).
		Str("session_id", active.SessionID).
		Int64("calls", active.Calls).
		Int64("productive_time", active.ProductiveTime).
		Msg("work session ended")

	m.broadcaster.Publish(broadcast.EventSessionEnd, types.SessionEvent{
		AgentID:    agentID,
		SessionID:  active.SessionID,
		CampaignID: active.CampaignID,
		LoginTime:  active.LoginTime,
		LogoutTime: active.LogoutTime,
	})

	return active, nil
}
