package syncjob

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/metrics"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// DefaultInterval is how often the cache-to-durable reconciliation runs
const DefaultInterval = 60 * time.Second

// Job periodically copies each active session's DailyMetrics from the
// cache into its durable WorkSessionRecord. A run that is still executing
// when the next tick fires causes that tick to be skipped entirely, never
// queued.
type Job struct {
	store    storage.Store
	cache    cache.Store
	interval time.Duration
	logger   zerolog.Logger
	running  atomic.Bool
	now      func() time.Time
}

// New creates a sync job
func New(store storage.Store, cacheStore cache.Store, interval time.Duration, logger zerolog.Logger) *Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Job{
		store:    store,
		cache:    cacheStore,
		interval: interval,
		logger:   logger.With().Str("component", "syncjob").Logger(),
		now:      time.Now,
	}
}

// Start runs the job on its interval until the context is cancelled
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("metrics sync job started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("metrics sync job stopped")
			return

		case <-ticker.C:
			if !j.running.CompareAndSwap(false, true) {
				metrics.Get().RecordSyncSkip()
				j.logger.Warn().Msg("previous sync run still executing, skipping tick")
				continue
			}
			go func() {
				defer j.running.Store(false)
				j.RunOnce()
			}()
		}
	}
}

// RunOnce syncs every agent with an active work session. A failure on one
// agent is logged and does not abort the batch.
func (j *Job) RunOnce() {
	start := j.now()

	sessions, err := j.store.ListActiveWorkSessions()
	if err != nil {
		metrics.Get().RecordSyncError()
		j.logger.Error().Err(err).Msg("failed to list active work sessions")
		return
	}

	synced := 0
	for _, session := range sessions {
		if err := j.syncSession(session); err != nil {
			metrics.Get().RecordSyncError()
			j.logger.Error().Err(err).
				Str("agent_id", session.AgentID).
				Str("session_id", session.SessionID).
				Msg("failed to sync agent metrics")
			continue
		}
		synced++
	}

	metrics.Get().RecordSyncCycle(j.now().Sub(start), synced)
	j.logger.Debug().
		Int("sessions", len(sessions)).
		Int("synced", synced).
		Msg("sync cycle completed")
}

// SyncOne syncs a single agent's active session; used at logout so the
// final counter write lands before the session closes
func (j *Job) SyncOne(agentID string) error {
	session, err := j.store.FindActiveWorkSession(agentID)
	if err != nil {
		return fmt.Errorf("failed to find active session: %w", err)
	}
	if session == nil {
		return nil
	}
	return j.syncSession(*session)
}

func (j *Job) syncSession(session types.WorkSessionRecord) error {
	now := j.now()

	dayMetrics, err := j.cache.GetMetrics(session.AgentID, types.DateKeyFor(now))
	if err != nil {
		return fmt.Errorf("failed to read cached metrics: %w", err)
	}
	if dayMetrics == nil {
		// Nothing accumulated yet today; leave the durable counters alone
		return nil
	}

	session.ApplyMetrics(*dayMetrics, now)
	if err := j.store.SaveWorkSession(session); err != nil {
		return fmt.Errorf("failed to persist session metrics: %w", err)
	}
	return nil
}
