package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// RosterEntry represents a single account in the roster payload
type RosterEntry struct {
	AgentID string     `json:"agentId"`
	Name    string     `json:"name"`
	Role    types.Role `json:"role"`
}

// RosterHandler handles the roster registration endpoint that populates
// the in-process directory
type RosterHandler struct {
	dir    *directory.MemoryDirectory
	logger zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(dir *directory.MemoryDirectory, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		dir:    dir,
		logger: logger.With().Str("component", "roster").Logger(),
	}
}

// HandleRoster handles POST /internal/agents/roster
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	registered := 0
	for _, entry := range roster {
		if entry.AgentID == "" {
			continue
		}
		role := entry.Role
		if role == "" {
			role = types.RoleAgent
		}
		h.dir.Register(directory.Agent{ID: entry.AgentID, Name: entry.Name, Role: role})
		registered++
	}

	h.logger.Info().Int("registered", registered).Msg("roster received")
	writeJSON(w, http.StatusOK, map[string]int{"registered": registered})
}
