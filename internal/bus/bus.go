// Package bus relays console events between controllers and open browser tabs.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// New creates a new event bus based on configuration.
// The default tier gets a ChannelBus, the Pro tier a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Emitter publishes console events for one profile.
// A nil Emitter or nil bus discards events.
type Emitter struct {
	bus     domain.EventBus
	profile string
}

// NewEmitter binds bus to profile.
func NewEmitter(bus domain.EventBus, profile string) *Emitter {
	return &Emitter{bus: bus, profile: profile}
}

// Emit publishes a domain.Event on topic. Failures are logged, never returned:
// controllers must not fail because nobody is listening.
func (e *Emitter) Emit(ctx context.Context, topic, message string) {
	if e == nil || e.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.Event{Topic: topic, Message: message})
	if err != nil {
		slog.Error("failed to encode console event", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, e.profile, topic, payload); err != nil {
		slog.Warn("failed to publish console event", "topic", topic, "error", err)
	}
}
