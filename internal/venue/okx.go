package venue

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OKX decodes the books5 channel: an envelope carrying the subscribed arg
// and a data array of book snapshots with [price, size, ...] string
// levels. Event frames acknowledge subscribes or report errors; the server
// answers ping text with a bare "pong".
type OKX struct {
	exchange string
}

var _ Normalizer = (*OKX)(nil)

// NewOKX returns a books5 normalizer for the given exchange ID.
func NewOKX(exchange string) *OKX {
	return &OKX{exchange: exchange}
}

func (o *OKX) Variant() string { return "okx" }

type okxEnvelope struct {
	Event string    `json:"event"`
	Code  string    `json:"code"`
	Msg   string    `json:"msg"`
	Arg   okxArg    `json:"arg"`
	Data  []okxBook `json:"data"`
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxBook struct {
	Bids  [][]string `json:"bids"`
	Asks  [][]string `json:"asks"`
	TS    string     `json:"ts"`
	SeqID int64      `json:"seqId"`
}

func (o *OKX) Decode(raw []byte) (domain.BookUpdate, bool, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("pong")) {
		return domain.BookUpdate{}, false, nil
	}
	var env okxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.BookUpdate{}, false, decodeErr(o.exchange, "malformed json", err)
	}
	switch env.Event {
	case "subscribe", "unsubscribe":
		return domain.BookUpdate{}, false, nil
	case "error":
		return domain.BookUpdate{}, false, decodeErr(o.exchange, "venue error "+env.Code+": "+env.Msg, nil)
	}
	if len(env.Data) == 0 {
		return domain.BookUpdate{}, false, decodeErr(o.exchange, "unrecognized frame", nil)
	}
	book := env.Data[0]
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return domain.BookUpdate{}, false, nil
	}
	if len(book.Bids[0]) < 2 || len(book.Asks[0]) < 2 {
		return domain.BookUpdate{}, false, decodeErr(o.exchange, "short level entry", nil)
	}
	bid, err := parseDecimal(o.exchange, "bid price", book.Bids[0][0])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	bidQty, err := parseDecimal(o.exchange, "bid qty", book.Bids[0][1])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	ask, err := parseDecimal(o.exchange, "ask price", book.Asks[0][0])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	askQty, err := parseDecimal(o.exchange, "ask qty", book.Asks[0][1])
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	var seq uint64
	if book.SeqID > 0 {
		seq = uint64(book.SeqID)
	} else if book.TS != "" {
		// Older gateways omit seqId; the millisecond timestamp still
		// orders updates.
		if ms, perr := strconv.ParseUint(book.TS, 10, 64); perr == nil {
			seq = ms
		}
	}
	return domain.BookUpdate{
		Exchange:   o.exchange,
		BidPrice:   bid,
		BidQty:     bidQty,
		AskPrice:   ask,
		AskQty:     askQty,
		Sequence:   seq,
		ReceivedAt: time.Now(),
	}, true, nil
}
