package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/pause"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/syncjob"
	"github.com/dialcraft/wfm-backend/internal/types"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) Publish(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) SubscriberCount() int { return 1 }

func (r *recordingBroadcaster) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type failingSyncer struct {
	called bool
}

func (s *failingSyncer) SyncOne(agentID string) error {
	s.called = true
	return errors.New("dynamodb throttled")
}

func newTestManager(t *testing.T, syncer MetricsSyncer) (*Manager, *storage.MemoryStore, *cache.MemoryStore, *recordingBroadcaster) {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	dir.Register(directory.Agent{ID: "agent-1", Name: "Alice", Role: types.RoleAgent})

	cacheStore := cache.NewMemoryStore()
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}

	eng := engine.New(dir, cacheStore, store, broadcaster, time.Hour, zerolog.Nop())
	if syncer == nil {
		syncer = syncjob.New(store, cacheStore, time.Minute, zerolog.Nop())
	}
	pauseMgr := pause.NewManager(eng, store, broadcaster, zerolog.Nop())
	mgr := NewManager(eng, store, syncer, pauseMgr, broadcaster, zerolog.Nop())
	return mgr, store, cacheStore, broadcaster
}

func TestSessionLifecycle(t *testing.T) {
	mgr, store, cacheStore, broadcaster := newTestManager(t, nil)

	record, err := mgr.StartSession("agent-1", "campaign-7", map[string]string{"station": "12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.CampaignID != "campaign-7" {
		t.Errorf("expected campaign-7, got %s", record.CampaignID)
	}
	if !record.IsActive {
		t.Error("expected session to be active")
	}

	state, _ := cacheStore.GetAgentState("agent-1")
	if state == nil || state.Status != types.StatusAvailable {
		t.Fatalf("expected agent available after login, got %+v", state)
	}
	if broadcaster.count("session:started") != 1 {
		t.Errorf("expected 1 session:started event, got %d", broadcaster.count("session:started"))
	}

	// Simulate a day of accumulated counters in the cache
	dateKey := types.DateKeyFor(time.Now())
	cacheStore.IncrMetric("agent-1", dateKey, types.MetricProductiveTime, 3600)
	cacheStore.IncrMetric("agent-1", dateKey, types.MetricCallTime, 1200)
	cacheStore.IncrMetric("agent-1", dateKey, types.MetricCalls, 8)

	closed, err := mgr.EndSession("agent-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.IsActive {
		t.Error("expected session to be closed")
	}
	if closed.LogoutTime == nil {
		t.Error("expected logout time to be set")
	}

	// The final sync must land the cached counters in the closed record
	if closed.ProductiveTime != 3600 {
		t.Errorf("expected 3600 productive seconds synced, got %d", closed.ProductiveTime)
	}
	if closed.CallTime != 1200 {
		t.Errorf("expected 1200 call seconds synced, got %d", closed.CallTime)
	}
	if closed.Calls != 8 {
		t.Errorf("expected 8 calls synced, got %d", closed.Calls)
	}
	if closed.MetricsSyncedAt == nil {
		t.Error("expected MetricsSyncedAt to be set")
	}

	state, _ = cacheStore.GetAgentState("agent-1")
	if state == nil || state.Status != types.StatusOffline {
		t.Fatalf("expected agent offline after logout, got %+v", state)
	}

	if active, _ := store.FindActiveWorkSession("agent-1"); active != nil {
		t.Error("expected no active session after logout")
	}
	if broadcaster.count("session:ended") != 1 {
		t.Errorf("expected 1 session:ended event, got %d", broadcaster.count("session:ended"))
	}
}

func TestStartSessionAlreadyActive(t *testing.T) {
	mgr, _, _, _ := newTestManager(t, nil)

	if _, err := mgr.StartSession("agent-1", "campaign-7", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := mgr.StartSession("agent-1", "campaign-8", nil)
	if !errors.Is(err, ErrSessionAlreadyActive) {
		t.Errorf("expected ErrSessionAlreadyActive, got %v", err)
	}
}

func TestEndSessionNoActive(t *testing.T) {
	mgr, _, _, _ := newTestManager(t, nil)

	_, err := mgr.EndSession("agent-1", nil)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestEndSessionClosesDespiteSyncFailure(t *testing.T) {
	syncer := &failingSyncer{}
	mgr, store, cacheStore, _ := newTestManager(t, syncer)

	if _, err := mgr.StartSession("agent-1", "campaign-7", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, err := mgr.EndSession("agent-1", nil)
	if err != nil {
		t.Fatalf("expected session to close despite sync failure, got %v", err)
	}
	if !syncer.called {
		t.Error("expected the final sync to be attempted")
	}
	if closed.IsActive {
		t.Error("expected session to be closed")
	}

	if active, _ := store.FindActiveWorkSession("agent-1"); active != nil {
		t.Error("expected no active session after logout")
	}
	state, _ := cacheStore.GetAgentState("agent-1")
	if state == nil || state.Status != types.StatusOffline {
		t.Fatalf("expected agent offline, got %+v", state)
	}
}

// slowStore stretches the window between the active-session check and the
// record write so overlapping logins actually overlap
type slowStore struct {
	*storage.MemoryStore
	delay time.Duration
}

func (s *slowStore) FindActiveWorkSession(agentID string) (*types.WorkSessionRecord, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.FindActiveWorkSession(agentID)
}

func TestConcurrentStartSessionSingleWinner(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	dir.Register(directory.Agent{ID: "agent-1", Name: "Alice", Role: types.RoleAgent})

	inner := storage.NewMemoryStore()
	slow := &slowStore{MemoryStore: inner, delay: 50 * time.Millisecond}
	cacheStore := cache.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}

	eng := engine.New(dir, cacheStore, inner, broadcaster, time.Hour, zerolog.Nop())
	syncer := syncjob.New(inner, cacheStore, time.Minute, zerolog.Nop())
	pauseMgr := pause.NewManager(eng, inner, broadcaster, zerolog.Nop())
	mgr := NewManager(eng, slow, syncer, pauseMgr, broadcaster, zerolog.Nop())

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.StartSession("agent-1", "campaign-7", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSessionAlreadyActive):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one login to win, got %d successes and %d conflicts", successes, conflicts)
	}

	active, err := inner.ListActiveWorkSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active session, got %d", len(active))
	}
}

func TestEndSessionClosesActivePause(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	dir.Register(directory.Agent{ID: "agent-1", Name: "Alice", Role: types.RoleAgent})

	store := storage.NewMemoryStore()
	cacheStore := cache.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}

	eng := engine.New(dir, cacheStore, store, broadcaster, time.Hour, zerolog.Nop())
	syncer := syncjob.New(store, cacheStore, time.Minute, zerolog.Nop())
	pauseMgr := pause.NewManager(eng, store, broadcaster, zerolog.Nop())
	mgr := NewManager(eng, store, syncer, pauseMgr, broadcaster, zerolog.Nop())

	if _, err := mgr.StartSession("agent-1", "campaign-7", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pauseMgr.StartPause("agent-1", types.PauseBreak, "coffee", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Logging out mid-pause must close the pause along with the session
	closed, err := mgr.EndSession("agent-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.IsActive {
		t.Error("expected session to be closed")
	}

	if activePause, _ := store.FindActivePauseRecord("agent-1"); activePause != nil {
		t.Fatalf("expected no active pause after logout, got %+v", activePause)
	}
	state, _ := cacheStore.GetAgentState("agent-1")
	if state == nil || state.Status != types.StatusOffline {
		t.Fatalf("expected agent offline after logout, got %+v", state)
	}

	// With the pause gone the next login must not be blocked
	if _, err := mgr.StartSession("agent-1", "campaign-7", nil); err != nil {
		t.Fatalf("expected clean re-login after logout, got %v", err)
	}
}

// vanishingStore returns the active session once, then pretends it is gone
type vanishingStore struct {
	*storage.MemoryStore
	reads atomic.Int32
}

func (s *vanishingStore) FindActiveWorkSession(agentID string) (*types.WorkSessionRecord, error) {
	if s.reads.Add(1) > 1 {
		return nil, nil
	}
	return s.MemoryStore.FindActiveWorkSession(agentID)
}

type nopSyncer struct{}

func (nopSyncer) SyncOne(agentID string) error { return nil }

func TestEndSessionVanishedAfterSync(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	dir.Register(directory.Agent{ID: "agent-1", Name: "Alice", Role: types.RoleAgent})

	inner := storage.NewMemoryStore()
	store := &vanishingStore{MemoryStore: inner}
	cacheStore := cache.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}

	eng := engine.New(dir, cacheStore, inner, broadcaster, time.Hour, zerolog.Nop())
	pauseMgr := pause.NewManager(eng, inner, broadcaster, zerolog.Nop())
	mgr := NewManager(eng, store, nopSyncer{}, pauseMgr, broadcaster, zerolog.Nop())

	if err := inner.SaveWorkSession(types.WorkSessionRecord{
		AgentID:   "agent-1",
		SessionID: "session-1",
		DateKey:   types.DateKeyFor(time.Now()),
		LoginTime: time.Now(),
		IsActive:  true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The session disappearing between the final sync and the re-read must
	// surface as the sentinel error, not a malformed wrapped nil
	_, err := mgr.EndSession("agent-1", nil)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestEndSessionWithFinalMetrics(t *testing.T) {
	mgr, _, _, _ := newTestManager(t, nil)

	if _, err := mgr.StartSession("agent-1", "campaign-7", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, err := mgr.EndSession("agent-1", &types.DailyMetrics{
		ProductiveTime: 7200,
		Calls:          15,
		Sales:          3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Caller-supplied final counters override the synced snapshot
	if closed.ProductiveTime != 7200 {
		t.Errorf("expected 7200 productive seconds, got %d", closed.ProductiveTime)
	}
	if closed.Calls != 15 {
		t.Errorf("expected 15 calls, got %d", closed.Calls)
	}
	if closed.Sales != 3 {
		t.Errorf("expected 3 sales, got %d", closed.Sales)
	}
}
