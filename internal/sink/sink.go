// Package sink fans detector and supervisor events out to consumers:
// logs, alerts, storage, the redis bus, and dashboard sockets.
package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

const (
	// queueSize bounds the dispatch queue; events beyond it are dropped.
	queueSize = 256

	// deliverTimeout caps how long one event may occupy the worker.
	deliverTimeout = 10 * time.Second
)

// Sink is one event consumer. Handlers run on the dispatcher worker and
// may do I/O; their errors are logged, never propagated to the core.
type Sink interface {
	Name() string
	HandleOpportunity(ctx context.Context, opp domain.Opportunity) error
	HandleHealth(ctx context.Context, exchange string, state domain.ConnState) error
}

// event is the union carried on the dispatch queue.
type event struct {
	opp      *domain.Opportunity
	exchange string
	state    domain.ConnState
}

// Dispatcher implements domain.EventSink with a bounded queue and a
// single worker, so the feed and detector never wait on sink I/O. When
// the queue is full events are dropped and counted.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	queue  chan event
}

var _ domain.EventSink = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher delivering to the given sinks in
// order.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "sink")),
		queue:  make(chan event, queueSize),
	}
}

// OnOpportunity queues an opportunity without blocking.
func (d *Dispatcher) OnOpportunity(_ context.Context, opp domain.Opportunity) {
	select {
	case d.queue <- event{opp: &opp}:
	default:
		metrics.SinkDropped.WithLabelValues("opportunity").Inc()
	}
}

// OnHealthChange queues a health transition without blocking.
func (d *Dispatcher) OnHealthChange(_ context.Context, exchange string, state domain.ConnState) {
	select {
	case d.queue <- event{exchange: exchange, state: state}:
	default:
		metrics.SinkDropped.WithLabelValues("health").Inc()
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("sink dispatcher started", slog.Int("sinks", len(d.sinks)))
	defer d.logger.Info("sink dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev event) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	for _, s := range d.sinks {
		var err error
		if ev.opp != nil {
			err = s.HandleOpportunity(ctx, *ev.opp)
		} else {
			err = s.HandleHealth(ctx, ev.exchange, ev.state)
		}
		if err != nil {
			d.logger.Warn("sink delivery failed",
				slog.String("sink", s.Name()),
				slog.String("error", err.Error()))
		}
	}
}
