package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/broadcast"
	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/fleet"
	"github.com/dialcraft/wfm-backend/internal/pause"
	"github.com/dialcraft/wfm-backend/internal/session"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/syncjob"
	"github.com/dialcraft/wfm-backend/internal/types"
)

// newTestRouter wires the handlers against in-memory components, mirroring
// the server's route table
func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	logger := zerolog.Nop()

	dir := directory.NewMemoryDirectory()
	cacheStore := cache.NewMemoryStore()
	store := storage.NewMemoryStore()
	broadcaster := broadcast.NopBroadcaster{}

	eng := engine.New(dir, cacheStore, store, broadcaster, time.Hour, logger)
	syncJob := syncjob.New(store, cacheStore, time.Minute, logger)
	pauses := pause.NewManager(eng, store, broadcaster, logger)
	sessions := session.NewManager(eng, store, syncJob, pauses, broadcaster, logger)
	aggregator := fleet.NewAggregator(dir, cacheStore, 15*time.Minute, logger)

	actions := NewAgentActionsHandler(eng, pauses, sessions, logger)
	history := NewAgentHistoryHandler(store, logger)
	fleetHandler := NewFleetHandler(aggregator, logger)
	roster := NewRosterHandler(dir, logger)

	r := chi.NewRouter()
	r.Post("/internal/agents/roster", roster.HandleRoster)
	r.Post("/internal/agents/{agentId}/reset", actions.ResetState)
	r.Route("/api", func(r chi.Router) {
		r.Route("/agents/{agentId}", func(r chi.Router) {
			r.Post("/status", actions.ChangeStatus)
			r.Post("/pause", actions.StartPause)
			r.Post("/pause/end", actions.EndPause)
			r.Post("/session", actions.StartSession)
			r.Post("/session/end", actions.EndSession)
			r.Get("/metrics", actions.GetMetrics)
			r.Get("/history", history.GetStatusHistory)
		})
		r.Get("/fleet/snapshot", fleetHandler.GetSnapshot)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAgent(t *testing.T, router http.Handler, agentID, name string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/internal/agents/roster", []RosterEntry{
		{AgentID: agentID, Name: name, Role: types.RoleAgent},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("roster registration failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAgentDayLifecycle(t *testing.T) {
	router := newTestRouter(t)
	registerAgent(t, router, "agent-1", "Alice")

	// Login
	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session", map[string]string{"campaignId": "campaign-7"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on login, got %d %s", rec.Code, rec.Body.String())
	}
	var sess types.WorkSessionRecord
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.CampaignID != "campaign-7" || !sess.IsActive {
		t.Errorf("unexpected session %+v", sess)
	}

	// Take a call, wrap it up
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/status", map[string]string{"status": "in_call", "reason": "inbound"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on in_call, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/status", map[string]string{"status": "after_call_work"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on after_call_work, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/status", map[string]string{"status": "available"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on available, got %d", rec.Code)
	}

	// Pause and resume
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/pause", map[string]string{"pauseType": "break", "reason": "coffee"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on pause, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/pause/end", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on pause end, got %d %s", rec.Code, rec.Body.String())
	}

	// Metrics reflect the day so far
	rec = doJSON(t, router, http.MethodGet, "/api/agents/agent-1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on metrics, got %d", rec.Code)
	}
	var m types.DailyMetrics
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.Calls != 1 {
		t.Errorf("expected 1 call, got %d", m.Calls)
	}

	// Logout
	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session/end", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d %s", rec.Code, rec.Body.String())
	}
	var closed types.WorkSessionRecord
	json.Unmarshal(rec.Body.Bytes(), &closed)
	if closed.IsActive {
		t.Error("expected session to be closed")
	}
	if closed.Calls != 1 {
		t.Errorf("expected 1 call in closed session, got %d", closed.Calls)
	}

	// History has one record per interval: available, in_call, acw,
	// available, on_pause, available, offline
	rec = doJSON(t, router, http.MethodGet, "/api/agents/agent-1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on history, got %d", rec.Code)
	}
	var records []types.AgentStatusRecord
	json.Unmarshal(rec.Body.Bytes(), &records)
	if len(records) != 7 {
		t.Errorf("expected 7 status records, got %d", len(records))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)
	registerAgent(t, router, "agent-1", "Alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{
			name:   "unknown agent",
			method: http.MethodPost,
			path:   "/api/agents/agent-99/status",
			body:   map[string]string{"status": "available"},
			want:   http.StatusNotFound,
		},
		{
			name:   "invalid status",
			method: http.MethodPost,
			path:   "/api/agents/agent-1/status",
			body:   map[string]string{"status": "napping"},
			want:   http.StatusBadRequest,
		},
		{
			name:   "illegal transition",
			method: http.MethodPost,
			path:   "/api/agents/agent-1/status",
			body:   map[string]string{"status": "in_call"},
			want:   http.StatusConflict,
		},
		{
			name:   "invalid pause type",
			method: http.MethodPost,
			path:   "/api/agents/agent-1/pause",
			body:   map[string]string{"pauseType": "siesta"},
			want:   http.StatusBadRequest,
		},
		{
			name:   "end pause without active pause",
			method: http.MethodPost,
			path:   "/api/agents/agent-1/pause/end",
			body:   nil,
			want:   http.StatusConflict,
		},
		{
			name:   "end session without active session",
			method: http.MethodPost,
			path:   "/api/agents/agent-1/session/end",
			body:   nil,
			want:   http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDoubleLoginConflicts(t *testing.T) {
	router := newTestRouter(t)
	registerAgent(t, router, "agent-1", "Alice")

	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session", map[string]string{"campaignId": "campaign-7"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session", map[string]string{"campaignId": "campaign-8"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on double login, got %d", rec.Code)
	}
}

func TestFleetSnapshotEndpoint(t *testing.T) {
	router := newTestRouter(t)
	registerAgent(t, router, "agent-1", "Alice")
	registerAgent(t, router, "agent-2", "Bob")

	doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session", map[string]string{"campaignId": "campaign-7"})

	rec := doJSON(t, router, http.MethodGet, "/api/fleet/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snapshot types.FleetSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if snapshot.Summary.TotalAgents != 2 {
		t.Errorf("expected 2 agents, got %d", snapshot.Summary.TotalAgents)
	}
	if snapshot.Summary.StatusBreakdown[types.StatusAvailable] != 1 {
		t.Errorf("expected 1 available, got %d", snapshot.Summary.StatusBreakdown[types.StatusAvailable])
	}
	if snapshot.Summary.StatusBreakdown[types.StatusOffline] != 1 {
		t.Errorf("expected 1 offline, got %d", snapshot.Summary.StatusBreakdown[types.StatusOffline])
	}
}

func TestResetEndpoint(t *testing.T) {
	router := newTestRouter(t)
	registerAgent(t, router, "agent-1", "Alice")

	doJSON(t, router, http.MethodPost, "/api/agents/agent-1/session", map[string]string{"campaignId": "campaign-7"})

	rec := doJSON(t, router, http.MethodPost, "/internal/agents/agent-1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/internal/agents/agent-99/reset", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", rec.Code)
	}

	// A reset drops cached state only; the fleet view reports the agent
	// offline but still lists it
	rec = doJSON(t, router, http.MethodGet, "/api/fleet/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snapshot types.FleetSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if snapshot.Summary.StatusBreakdown[types.StatusOffline] != 1 {
		t.Errorf("expected agent reported offline after reset, got %+v", snapshot.Summary.StatusBreakdown)
	}
}

func TestRosterRejectsInvalidJSON(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/agents/roster", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
