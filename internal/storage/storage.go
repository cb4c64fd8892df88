package storage

import "github.com/dialcraft/wfm-backend/internal/types"

// Store is the durable persistence layer for status history, pauses, and
// work sessions. Save methods upsert by key, so closing a record is a save
// of the mutated record. FindActive* return (nil, nil) when no active
// record exists.
type Store interface {
	SaveStatusRecord(record types.AgentStatusRecord) error
	FindActiveStatusRecord(agentID string) (*types.AgentStatusRecord, error)
	ListStatusRecords(agentID, dateKey string) ([]types.AgentStatusRecord, error)

	SavePauseRecord(record types.PauseRecord) error
	FindActivePauseRecord(agentID string) (*types.PauseRecord, error)
	FindPauseRecord(agentID, pauseID string) (*types.PauseRecord, error)

	SaveWorkSession(record types.WorkSessionRecord) error
	FindActiveWorkSession(agentID string) (*types.WorkSessionRecord, error)
	ListActiveWorkSessions() ([]types.WorkSessionRecord, error)
}
