package venue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Bybit decodes the v5 orderbook.1 topic: an envelope with a topic string
// and a data object holding bid/ask arrays of [price, size] string pairs.
// Operational frames (subscribe acks, pongs) carry op/success fields and
// no topic.
type Bybit struct {
	exchange string
}

var _ Normalizer = (*Bybit)(nil)

// NewBybit returns a v5 orderbook normalizer for the given exchange ID.
func NewBybit(exchange string) *Bybit {
	return &Bybit{exchange: exchange}
}

func (b *Bybit) Variant() string { return "bybit" }

type bybitEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type bybitBook struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID uint64     `json:"u"`
	Seq      uint64     `json:"seq"`
}

func (b *Bybit) Decode(raw []byte) (domain.BookUpdate, bool, error) {
	var env bybitEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "malformed json", err)
	}
	// Subscribe/ping responses identify themselves by op or success.
	if env.Op != "" || env.Success != nil {
		return domain.BookUpdate{}, false, nil
	}
	if !strings.HasPrefix(env.Topic, "orderbook.") {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "unexpected topic "+env.Topic, nil)
	}
	var book bybitBook
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "malformed orderbook data", err)
	}
	// Deltas can move only one side; without both sides there is no full
	// top of book to publish.
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return domain.BookUpdate{}, false, nil
	}
	if len(book.Bids[0]) < 2 || len(book.Asks[0]) < 2 {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "short level entry", nil)
	}
	bid, err := parseDecimal(b.exchange, "bid price", book.Bids[0][0])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	bidQty, err := parseDecimal(b.exchange, "bid qty", book.Bids[0][1])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	ask, err := parseDecimal(b.exchange, "ask price", book.Asks[0][0])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	askQty, err := parseDecimal(b.exchange, "ask qty", book.Asks[0][1])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	seq := book.Seq
	if seq == 0 {
		seq = book.UpdateID
	}
	return domain.BookUpdate{
		Exchange:   b.exchange,
		BidPrice:   bid,
		BidQty:     bidQty,
		AskPrice:   ask,
		AskQty:     askQty,
		Sequence:   seq,
		ReceivedAt: time.Now(),
	}, true, nil
}
