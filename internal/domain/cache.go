package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest top-of-book per exchange into shared
// storage so dashboards and other processes can read prices without
// touching the live feeds.
type QuoteCache interface {
	SetQuote(ctx context.Context, q ExchangeQuote) error
	GetQuote(ctx context.Context, exchange string) (ExchangeQuote, error)
	GetQuotes(ctx context.Context, exchanges []string) (map[string]ExchangeQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
