package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// AgentHistoryHandler provides REST endpoints for historical status data
type AgentHistoryHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewAgentHistoryHandler creates a new AgentHistoryHandler
func NewAgentHistoryHandler(store storage.Store, logger zerolog.Logger) *AgentHistoryHandler {
	return &AgentHistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "agent_history_handler").Logger(),
	}
}

// GetStatusHistory returns an agent's status intervals, optionally
// filtered by date
// GET /api/agents/{agentId}/history?date=YYYY-MM-DD
func (h *AgentHistoryHandler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")

	records, err := h.store.ListStatusRecords(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to list status records")
		http.Error(w, "failed to retrieve history", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.AgentStatusRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
