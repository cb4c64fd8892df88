package broadcast

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Event names published by the engine and its managers
const (
	EventStatusChanged = "status:changed"
	EventPauseStarted  = "pause:started"
	EventPauseEnded    = "pause:ended"
	EventPauseAlert    = "pause:alert"
	EventSessionStart  = "session:started"
	EventSessionEnd    = "session:ended"
	EventFleetSnapshot = "fleet:snapshot"
)

// Broadcaster is a fire-and-forget notification channel. Publish never
// blocks the caller on delivery and gives no delivery guarantee.
// SubscriberCount lets periodic publishers skip work when nobody listens.
type Broadcaster interface {
	Publish(event string, payload any)
	SubscriberCount() int
}

// Envelope is the wire format for every published event
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// HubBroadcaster publishes events to all WebSocket clients of a Hub
type HubBroadcaster struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewHubBroadcaster creates a Broadcaster backed by the given hub
func NewHubBroadcaster(hub *Hub, logger zerolog.Logger) *HubBroadcaster {
	return &HubBroadcaster{
		hub:    hub,
		logger: logger,
	}
}

func (b *HubBroadcaster) Publish(event string, payload any) {
	data, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}
	b.hub.Broadcast(data)
}

func (b *HubBroadcaster) SubscriberCount() int {
	return b.hub.ClientCount()
}

// NopBroadcaster discards all events; used when no realtime channel is wired
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(string, any) {}

func (NopBroadcaster) SubscriberCount() int { return 0 }
