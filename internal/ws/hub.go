package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"roomchat/internal/bus"
	"roomchat/internal/models"
	"roomchat/internal/observability"
)

// Hub connects the local session registry to the fan-out bus. Events are
// published to the bus and every instance, this one included, delivers
// them to its own subscribers.
type Hub struct {
	bus      bus.Bus
	registry *Registry
	log      zerolog.Logger
}

func NewHub(b bus.Bus, log zerolog.Logger) *Hub {
	return &Hub{
		bus:      b,
		registry: NewRegistry(),
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Start subscribes the registry to the bus.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.bus.Subscribe(ctx, h.deliver); err != nil {
		return fmt.Errorf("subscribe hub to bus: %w", err)
	}
	return nil
}

func (h *Hub) deliver(msg bus.Message) {
	n := h.registry.Deliver(msg)
	observability.AddBusDeliveries(n)
	h.log.Debug().Str("channel", msg.Channel).Str("type", msg.Type).Int("sessions", n).Msg("bus message delivered")
}

// Publish renders event and publishes it on channel.
func (h *Hub) Publish(ctx context.Context, channel string, event models.OutboundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}
	if err := h.bus.Publish(ctx, bus.Message{Channel: channel, Type: event.EventType(), Data: data}); err != nil {
		observability.IncBusPublishError()
		return err
	}
	observability.IncBusPublished(event.EventType())
	return nil
}

func (h *Hub) Subscribe(channel string, sub Subscriber) bool {
	added := h.registry.Subscribe(channel, sub)
	if added {
		observability.SetRegistryChannels(h.registry.Channels())
	}
	return added
}

func (h *Hub) Unsubscribe(channel string, sub Subscriber) bool {
	removed := h.registry.Unsubscribe(channel, sub)
	if removed {
		observability.SetRegistryChannels(h.registry.Channels())
	}
	return removed
}

// Registry exposes the local registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}
