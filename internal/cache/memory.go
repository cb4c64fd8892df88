package cache

import (
	"sync"
	"time"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// MemoryStore is a mutex-guarded in-process Store used when no shared
// cache is configured, and in tests. Entries expire lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[string]stateEntry
	metrics map[string]metricsEntry // agentID:dateKey
	now     func() time.Time
}

type stateEntry struct {
	state     types.CachedAgentState
	expiresAt time.Time
}

type metricsEntry struct {
	metrics   types.DailyMetrics
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory cache
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]stateEntry),
		metrics: make(map[string]metricsEntry),
		now:     time.Now,
	}
}

func metricsKey(agentID, dateKey string) string {
	return agentID + ":" + dateKey
}

func (s *MemoryStore) GetAgentState(agentID string) (*types.CachedAgentState, error) {
	s.mu.RLock()
	entry, ok := s.states[agentID]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (s *MemoryStore) SetAgentState(agentID string, state types.CachedAgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[agentID] = stateEntry{state: state, expiresAt: s.now().Add(stateTTL)}
	return nil
}

func (s *MemoryStore) DeleteAgentState(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, agentID)
	return nil
}

func (s *MemoryStore) ListAgentStates() (map[string]types.CachedAgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	states := make(map[string]types.CachedAgentState, len(s.states))
	for id, entry := range s.states {
		if now.After(entry.expiresAt) {
			continue
		}
		states[id] = entry.state
	}
	return states, nil
}

func (s *MemoryStore) IncrMetric(agentID, dateKey string, field types.MetricField, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricsKey(agentID, dateKey)
	entry, ok := s.metrics[key]
	now := s.now()
	if !ok || now.After(entry.expiresAt) {
		entry = metricsEntry{expiresAt: endOfDay(now)}
	}

	switch field {
	case types.MetricProductiveTime:
		entry.metrics.ProductiveTime += delta
	case types.MetricPauseTime:
		entry.metrics.PauseTime += delta
	case types.MetricCallTime:
		entry.metrics.CallTime += delta
	case types.MetricAfterCallWorkTime:
		entry.metrics.AfterCallWorkTime += delta
	case types.MetricCalls:
		entry.metrics.Calls += delta
	case types.MetricSales:
		entry.metrics.Sales += delta
	}
	entry.metrics.LastUpdate = now

	s.metrics[key] = entry
	return nil
}

func (s *MemoryStore) GetMetrics(agentID, dateKey string) (*types.DailyMetrics, error) {
	s.mu.RLock()
	entry, ok := s.metrics[metricsKey(agentID, dateKey)]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}
	metrics := entry.metrics
	return &metrics, nil
}

func (s *MemoryStore) EnsureMetrics(agentID, dateKey string) (*types.DailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricsKey(agentID, dateKey)
	entry, ok := s.metrics[key]
	now := s.now()
	if !ok || now.After(entry.expiresAt) {
		entry = metricsEntry{
			metrics:   types.DailyMetrics{LastUpdate: now},
			expiresAt: endOfDay(now),
		}
		s.metrics[key] = entry
	}
	metrics := entry.metrics
	return &metrics, nil
}
