package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// quoteTTL expires mirrored quotes so dead venues disappear from shared
// storage instead of serving stale prices forever.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache on Redis hashes. Each venue's
// top of book lives at "quote:{exchange}" with prices kept as decimal
// strings and timestamps as Unix nanoseconds.
type QuoteCache struct {
	rdb *redis.Client
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(exchange string) string {
	return "quote:" + exchange
}

// SetQuote stores the latest top of book for a venue and refreshes its
// TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.ExchangeQuote) error {
	fields := map[string]interface{}{
		"bid":         q.Update.BidPrice.String(),
		"bid_qty":     q.Update.BidQty.String(),
		"ask":         q.Update.AskPrice.String(),
		"ask_qty":     q.Update.AskQty.String(),
		"seq":         strconv.FormatUint(q.Update.Sequence, 10),
		"received_at": strconv.FormatInt(q.Update.ReceivedAt.UnixNano(), 10),
		"updated_at":  strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}

	key := quoteKey(q.Exchange)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Exchange, err)
	}
	return nil
}

// GetQuote retrieves the mirrored top of book for one venue. It returns
// domain.ErrNotFound when the venue has no entry.
func (qc *QuoteCache) GetQuote(ctx context.Context, exchange string) (domain.ExchangeQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(exchange)).Result()
	if err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: get quote %s: %w", exchange, err)
	}
	if len(vals) == 0 {
		return domain.ExchangeQuote{}, domain.ErrNotFound
	}
	return parseQuote(exchange, vals)
}

// GetQuotes retrieves quotes for multiple venues using a pipeline.
// Venues without an entry are omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, exchanges []string) (map[string]domain.ExchangeQuote, error) {
	if len(exchanges) == 0 {
		return map[string]domain.ExchangeQuote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(exchanges))
	for _, ex := range exchanges {
		cmds[ex] = pipe.HGetAll(ctx, quoteKey(ex))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.ExchangeQuote, len(exchanges))
	for ex, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(ex, vals)
		if err != nil {
			continue
		}
		result[ex] = q
	}

	return result, nil
}

func parseQuote(exchange string, vals map[string]string) (domain.ExchangeQuote, error) {
	var (
		q   domain.ExchangeQuote
		err error
	)
	q.Exchange = exchange
	q.Update.Exchange = exchange

	if q.Update.BidPrice, err = decimal.NewFromString(vals["bid"]); err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse bid: %w", exchange, err)
	}
	if q.Update.BidQty, err = decimal.NewFromString(vals["bid_qty"]); err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse bid_qty: %w", exchange, err)
	}
	if q.Update.AskPrice, err = decimal.NewFromString(vals["ask"]); err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse ask: %w", exchange, err)
	}
	if q.Update.AskQty, err = decimal.NewFromString(vals["ask_qty"]); err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse ask_qty: %w", exchange, err)
	}
	if q.Update.Sequence, err = strconv.ParseUint(vals["seq"], 10, 64); err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse seq: %w", exchange, err)
	}

	receivedNano, err := strconv.ParseInt(vals["received_at"], 10, 64)
	if err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse received_at: %w", exchange, err)
	}
	q.Update.ReceivedAt = time.Unix(0, receivedNano).UTC()

	updatedNano, err := strconv.ParseInt(vals["updated_at"], 10, 64)
	if err != nil {
		return domain.ExchangeQuote{}, fmt.Errorf("redis: quote %s: parse updated_at: %w", exchange, err)
	}
	q.UpdatedAt = time.Unix(0, updatedNano).UTC()

	return q, nil
}
