// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crossarb"

var (
	// MessagesReceived counts raw websocket frames per exchange.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "messages_total",
		Help:      "Raw websocket messages received per exchange.",
	}, []string{"exchange"})

	// DecodeErrors counts messages dropped as undecodable.
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Messages dropped because they could not be decoded.",
	}, []string{"exchange"})

	// Reconnects counts dial attempts after the first per exchange.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts per exchange.",
	}, []string{"exchange"})

	// ConnState publishes the feed state machine position per exchange.
	ConnState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "connection_state",
		Help:      "Connection state per exchange (0 disconnected, 1 connecting, 2 subscribing, 3 streaming, 4 degraded).",
	}, []string{"exchange"})

	// BookUpdates counts ingest outcomes, result is "applied" or "rejected".
	BookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "book",
		Name:      "updates_total",
		Help:      "Price book ingest results per exchange.",
	}, []string{"exchange", "result"})

	// Scans counts detector evaluation passes.
	Scans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "scans_total",
		Help:      "Detector evaluation passes.",
	})

	// ScanDuration observes the wall time of one evaluation pass.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "scan_duration_seconds",
		Help:      "Duration of one detector evaluation pass.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})

	// Opportunities counts emitted opportunities.
	Opportunities = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "opportunities_total",
		Help:      "Opportunities emitted to the event sinks.",
	})

	// SinkDropped counts events discarded because a sink queue was full.
	SinkDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a sink queue was full.",
	}, []string{"event"})

	// MirrorDropped counts quotes not mirrored because the queue was full.
	MirrorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mirror",
		Name:      "dropped_quotes_total",
		Help:      "Quotes dropped because the mirror queue was full.",
	})
)
