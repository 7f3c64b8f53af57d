package venue

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Coinbase decodes the Exchange websocket ticker channel. Every frame is an
// envelope routed by its type field: "ticker" carries best bid/ask,
// "subscriptions" acknowledges a subscribe, "heartbeat" keeps the line
// warm, "error" reports a rejected request.
type Coinbase struct {
	exchange string
}

var _ Normalizer = (*Coinbase)(nil)

// NewCoinbase returns a ticker-channel normalizer for the given exchange ID.
func NewCoinbase(exchange string) *Coinbase {
	return &Coinbase{exchange: exchange}
}

func (c *Coinbase) Variant() string { return "coinbase" }

type coinbaseFrame struct {
	Type        string `json:"type"`
	ProductID   string `json:"product_id"`
	Sequence    uint64 `json:"sequence"`
	BestBid     string `json:"best_bid"`
	BestBidSize string `json:"best_bid_size"`
	BestAsk     string `json:"best_ask"`
	BestAskSize string `json:"best_ask_size"`
	Message     string `json:"message"`
	Reason      string `json:"reason"`
}

func (c *Coinbase) Decode(raw []byte) (domain.BookUpdate, bool, error) {
	var f coinbaseFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.BookUpdate{}, false, decodeErr(c.exchange, "malformed json", err)
	}
	switch f.Type {
	case "ticker":
	case "subscriptions", "heartbeat":
		return domain.BookUpdate{}, false, nil
	case "error":
		reason := f.Message
		if f.Reason != "" {
			reason += ": " + f.Reason
		}
		return domain.BookUpdate{}, false, decodeErr(c.exchange, "venue error: "+reason, nil)
	default:
		return domain.BookUpdate{}, false, decodeErr(c.exchange, "unexpected type "+f.Type, nil)
	}
	bid, err := parseDecimal(c.exchange, "best_bid", f.BestBid)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	ask, err := parseDecimal(c.exchange, "best_ask", f.BestAsk)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	// Sizes were added to the ticker later and may be absent on some
	// products; missing sizes are not an error.
	bidQty, askQty := decimal.Zero, decimal.Zero
	if f.BestBidSize != "" {
		if bidQty, err = parseDecimal(c.exchange, "best_bid_size", f.BestBidSize); err != nil {
			return domain.BookUpdate{}, false, err
		}
	}
	if f.BestAskSize != "" {
		if askQty, err = parseDecimal(c.exchange, "best_ask_size", f.BestAskSize); err != nil {
			return domain.BookUpdate{}, false, err
		}
	}
	return domain.BookUpdate{
		Exchange:   c.exchange,
		BidPrice:   bid,
		BidQty:     bidQty,
		AskPrice:   ask,
		AskQty:     askQty,
		Sequence:   f.Sequence,
		ReceivedAt: time.Now(),
	}, true, nil
}
