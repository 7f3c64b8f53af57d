package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Channel and stream names on the redis signal bus. Serve-mode processes
// subscribe to the channels to mirror events they did not produce.
const (
	ChannelOpportunity = "ch:opportunity"
	ChannelHealth      = "ch:health"
	StreamOpportunity  = "stream:opportunity"
)

// HealthPayload is the wire form of a health transition on the bus.
type HealthPayload struct {
	Exchange string `json:"exchange"`
	State    string `json:"state"`
}

// Bus publishes events to the redis signal bus: pub/sub for live
// consumers plus a capped stream so restarts can backfill.
type Bus struct {
	bus domain.SignalBus
}

var _ Sink = (*Bus)(nil)

func NewBus(bus domain.SignalBus) *Bus {
	return &Bus{bus: bus}
}

func (b *Bus) Name() string { return "bus" }

func (b *Bus) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("sink bus: marshal opportunity: %w", err)
	}
	if err := b.bus.Publish(ctx, ChannelOpportunity, payload); err != nil {
		return fmt.Errorf("sink bus: publish: %w", err)
	}
	if err := b.bus.StreamAppend(ctx, StreamOpportunity, payload); err != nil {
		return fmt.Errorf("sink bus: stream append: %w", err)
	}
	return nil
}

func (b *Bus) HandleHealth(ctx context.Context, exchange string, state domain.ConnState) error {
	payload, err := json.Marshal(HealthPayload{Exchange: exchange, State: state.String()})
	if err != nil {
		return fmt.Errorf("sink bus: marshal health: %w", err)
	}
	if err := b.bus.Publish(ctx, ChannelHealth, payload); err != nil {
		return fmt.Errorf("sink bus: publish health: %w", err)
	}
	return nil
}
