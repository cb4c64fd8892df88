package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/fleet"
)

// FleetHandler serves the aggregated supervisor view
type FleetHandler struct {
	aggregator *fleet.Aggregator
	logger     zerolog.Logger
}

// NewFleetHandler creates a new FleetHandler
func NewFleetHandler(aggregator *fleet.Aggregator, logger zerolog.Logger) *FleetHandler {
	return &FleetHandler{
		aggregator: aggregator,
		logger:     logger.With().Str("component", "fleet_handler").Logger(),
	}
}

// GetSnapshot handles GET /api/fleet/snapshot. The aggregator degrades
// per agent, so this never fails on a single bad record.
func (h *FleetHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.aggregator.FleetSnapshot())
}
