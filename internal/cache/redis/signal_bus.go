package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for live
// fan-out and Redis Streams for a bounded replayable history.
type SignalBus struct {
	rdb *redis.Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns a channel of raw
// payloads. The subscription closes when ctx is cancelled; the returned
// channel is closed at that point as well.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Receive the confirmation so a broken subscription fails here, not
	// silently on the pump goroutine.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern reports whether the channel name contains glob-style
// wildcards, in which case PSubscribe must be used.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends a payload to a stream, trimming it to roughly
// streamMaxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRecent returns up to count entries from the tail of a stream,
// newest first. A missing stream yields an empty result, not an error.
func (sb *SignalBus) StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	if count <= 0 {
		return nil, nil
	}

	entries, err := sb.rdb.XRevRangeN(ctx, stream, "+", "-", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream recent %s: %w", stream, err)
	}

	messages := make([]domain.StreamMessage, 0, len(entries))
	for _, entry := range entries {
		payload, ok := entry.Values["payload"]
		if !ok {
			continue
		}

		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}

		messages = append(messages, domain.StreamMessage{
			ID:      entry.ID,
			Payload: data,
		})
	}

	return messages, nil
}
