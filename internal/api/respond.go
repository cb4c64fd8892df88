package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/pause"
	"github.com/dialcraft/wfm-backend/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors to HTTP status codes: caller validation
// failures are 400/404, invariant conflicts 409, transient cache outages
// 503 (retryable)
func writeError(w http.ResponseWriter, err error) {
	var invalid *engine.InvalidTransitionError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrAgentNotFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidStatus),
		errors.Is(err, pause.ErrInvalidPauseType):
		status = http.StatusBadRequest
	case errors.Is(err, pause.ErrAlreadyPaused),
		errors.Is(err, pause.ErrNoActivePause),
		errors.Is(err, session.ErrSessionAlreadyActive),
		errors.Is(err, session.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrCacheUnavailable):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
