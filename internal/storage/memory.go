package storage

import (
	"sync"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// MemoryStore is a functional in-process Store used when DynamoDB is
// disabled, and in tests
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string][]types.AgentStatusRecord // agentID -> records
	pauses   map[string][]types.PauseRecord
	sessions map[string][]types.WorkSessionRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string][]types.AgentStatusRecord),
		pauses:   make(map[string][]types.PauseRecord),
		sessions: make(map[string][]types.WorkSessionRecord),
	}
}

func (s *MemoryStore) SaveStatusRecord(record types.AgentStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.statuses[record.AgentID]
	for i := range records {
		if records[i].RecordID == record.RecordID {
			records[i] = record
			return nil
		}
	}
	s.statuses[record.AgentID] = append(records, record)
	return nil
}

func (s *MemoryStore) FindActiveStatusRecord(agentID string) (*types.AgentStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.statuses[agentID] {
		if s.statuses[agentID][i].IsActive {
			record := s.statuses[agentID][i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListStatusRecords(agentID, dateKey string) ([]types.AgentStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []types.AgentStatusRecord
	for _, record := range s.statuses[agentID] {
		if dateKey == "" || record.DateKey == dateKey {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *MemoryStore) SavePauseRecord(record types.PauseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.pauses[record.AgentID]
	for i := range records {
		if records[i].PauseID == record.PauseID {
			records[i] = record
			return nil
		}
	}
	s.pauses[record.AgentID] = append(records, record)
	return nil
}

func (s *MemoryStore) FindActivePauseRecord(agentID string) (*types.PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.pauses[agentID] {
		if s.pauses[agentID][i].IsActive {
			record := s.pauses[agentID][i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindPauseRecord(agentID, pauseID string) (*types.PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.pauses[agentID] {
		if s.pauses[agentID][i].PauseID == pauseID {
			record := s.pauses[agentID][i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveWorkSession(record types.WorkSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.sessions[record.AgentID]
	for i := range records {
		if records[i].SessionID == record.SessionID {
			records[i] = record
			return nil
		}
	}
	s.sessions[record.AgentID] = append(records, record)
	return nil
}

func (s *MemoryStore) FindActiveWorkSession(agentID string) (*types.WorkSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sessions[agentID] {
		if s.sessions[agentID][i].IsActive {
			record := s.sessions[agentID][i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListActiveWorkSessions() ([]types.WorkSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []types.WorkSessionRecord
	for _, records := range s.sessions {
		for _, record := range records {
			if record.IsActive {
				active = append(active, record)
			}
		}
	}
	return active, nil
}
