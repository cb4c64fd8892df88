package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/pause"
	"github.com/dialcraft/wfm-backend/internal/session"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// AgentActionsHandler provides REST endpoints for agent state control:
// status changes, pauses, and work sessions
type AgentActionsHandler struct {
	engine   *engine.Engine
	pauses   *pause.Manager
	sessions *session.Manager
	logger   zerolog.Logger
}

// NewAgentActionsHandler creates a new AgentActionsHandler
func NewAgentActionsHandler(eng *engine.Engine, pauses *pause.Manager, sessions *session.Manager, logger zerolog.Logger) *AgentActionsHandler {
	return &AgentActionsHandler{
		engine:   eng,
		pauses:   pauses,
		sessions: sessions,
		logger:   logger.With().Str("component", "agent_actions").Logger(),
	}
}

type changeStatusRequest struct {
	Status   types.AgentStatus `json:"status"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata"`
}

// ChangeStatus handles POST /api/agents/{agentId}/status
func (h *AgentActionsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	record, err := h.engine.ChangeStatus(agentID, req.Status, req.Reason, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type startPauseRequest struct {
	PauseType types.PauseType   `json:"pauseType"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata"`
}

// StartPause handles POST /api/agents/{agentId}/pause
func (h *AgentActionsHandler) StartPause(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	var req startPauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	record, err := h.pauses.StartPause(agentID, req.PauseType, req.Reason, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// EndPause handles POST /api/agents/{agentId}/pause/end
func (h *AgentActionsHandler) EndPause(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	record, err := h.pauses.EndPause(agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type startSessionRequest struct {
	CampaignID string            `json:"campaignId"`
	Metadata   map[string]string `json:"metadata"`
}

// StartSession handles POST /api/agents/{agentId}/session
func (h *AgentActionsHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.StartSession(agentID, req.CampaignID, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type endSessionRequest struct {
	EndMetrics *types.DailyMetrics `json:"endMetrics"`
}

// EndSession handles POST /api/agents/{agentId}/session/end
func (h *AgentActionsHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	var req endSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}

	record, err := h.sessions.EndSession(agentID, req.EndMetrics)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ResetState handles POST /internal/agents/{agentId}/reset. It drops the
// agent's cached state without touching durable records.
func (h *AgentActionsHandler) ResetState(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.ResetAgent(agentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agentId": agentID, "result": "reset"})
}

// GetMetrics handles GET /api/agents/{agentId}/metrics
func (h *AgentActionsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	m, err := h.engine.GetCurrentMetrics(agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
