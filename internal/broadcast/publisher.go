package broadcast

import (
	"context"
	"time"

	"github.com/dialcraft/wfm-backend/internal/types"
	"github.com/rs/zerolog"
)

// SnapshotSource produces the aggregated fleet view
type SnapshotSource interface {
	FleetSnapshot() *types.FleetSnapshot
}

// SnapshotPublisher periodically publishes a full fleet snapshot while at
// least one observer is subscribed
type SnapshotPublisher struct {
	source      SnapshotSource
	broadcaster Broadcaster
	interval    time.Duration
	logger      zerolog.Logger
}

// NewSnapshotPublisher creates a new SnapshotPublisher
func NewSnapshotPublisher(source SnapshotSource, broadcaster Broadcaster, interval time.Duration, logger zerolog.Logger) *SnapshotPublisher {
	return &SnapshotPublisher{
		source:      source,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger,
	}
}

// Start begins publishing snapshots until the context is cancelled
func (p *SnapshotPublisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("snapshot publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("snapshot publisher stopped")
			return

		case <-ticker.C:
			// Skip the aggregation work when nobody is watching
			if p.broadcaster.SubscriberCount() == 0 {
				continue
			}

			snapshot := p.source.FleetSnapshot()
			p.broadcaster.Publish(EventFleetSnapshot, snapshot)

			p.logger.Debug().
				Int("agents", len(snapshot.Agents)).
				Int("alerts", len(snapshot.Alerts)).
				Int("observers", p.broadcaster.SubscriberCount()).
				Msg("fleet snapshot published")
		}
	}
}
