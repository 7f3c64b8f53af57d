package domain

import "context"

// EventSink receives detector and supervisor events. Implementations must
// return quickly and never block the caller; anything that does I/O has to
// queue internally.
type EventSink interface {
	OnOpportunity(ctx context.Context, opp Opportunity)
	OnHealthChange(ctx context.Context, exchange string, state ConnState)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnOpportunity(context.Context, Opportunity) {}

func (NopSink) OnHealthChange(context.Context, string, ConnState) {}
