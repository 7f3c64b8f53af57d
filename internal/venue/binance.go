package venue

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Binance decodes the bookTicker stream: a flat frame with single-letter
// fields and an update ID. The stream is selected by URL path, so a
// subscribe payload is only present when the combined-stream API is used;
// its {"result":null,"id":N} responses are treated as acks.
type Binance struct {
	exchange string
}

var _ Normalizer = (*Binance)(nil)

// NewBinance returns a bookTicker normalizer for the given exchange ID.
func NewBinance(exchange string) *Binance {
	return &Binance{exchange: exchange}
}

func (b *Binance) Variant() string { return "binance" }

type binanceFrame struct {
	UpdateID uint64 `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
	ID       *int64 `json:"id"`
}

func (b *Binance) Decode(raw []byte) (domain.BookUpdate, bool, error) {
	var f binanceFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "malformed json", err)
	}
	// WS API command responses carry an id and no book fields.
	if f.ID != nil {
		return domain.BookUpdate{}, false, nil
	}
	if f.Bid == "" && f.Ask == "" {
		return domain.BookUpdate{}, false, decodeErr(b.exchange, "frame has no book fields", nil)
	}
	bid, err := parseDecimal(b.exchange, "bid price", f.Bid)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	ask, err := parseDecimal(b.exchange, "ask price", f.Ask)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	bidQty, err := parseDecimal(b.exchange, "bid qty", f.BidQty)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	askQty, err := parseDecimal(b.exchange, "ask qty", f.AskQty)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	return domain.BookUpdate{
		Exchange:   b.exchange,
		BidPrice:   bid,
		BidQty:     bidQty,
		AskPrice:   ask,
		AskQty:     askQty,
		Sequence:   f.UpdateID,
		ReceivedAt: time.Now(),
	}, true, nil
}
