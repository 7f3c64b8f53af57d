package venue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestRegistryBuildsKnownVariants(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"binance", "bybit", "coinbase", "okx"}, reg.Variants())

	n, err := reg.New("binance", "binance-spot")
	require.NoError(t, err)
	assert.Equal(t, "binance", n.Variant())

	_, err = reg.New("kraken", "kraken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}

func TestRegistryBindsExchangeID(t *testing.T) {
	reg := NewRegistry()
	n, err := reg.New("binance", "binance-spot")
	require.NoError(t, err)

	upd, ok, err := n.Decode([]byte(`{"u":400900217,"s":"BTCUSDT","b":"50000.50","B":"0.61000000","a":"50000.90","A":"0.25000000"}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "binance-spot", upd.Exchange)
}

func TestBinanceDecodesBookTicker(t *testing.T) {
	n := NewBinance("binance")
	raw := []byte(`{"u":400900217,"s":"BTCUSDT","b":"50000.50","B":"0.61000000","a":"50000.90","A":"0.25000000"}`)

	upd, ok, err := n.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, upd.BidPrice.Equal(decimal.RequireFromString("50000.50")), "bid %s", upd.BidPrice)
	assert.True(t, upd.AskPrice.Equal(decimal.RequireFromString("50000.90")), "ask %s", upd.AskPrice)
	assert.True(t, upd.BidQty.Equal(decimal.RequireFromString("0.61")))
	assert.True(t, upd.AskQty.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, uint64(400900217), upd.Sequence)
	assert.WithinDuration(t, time.Now(), upd.ReceivedAt, time.Second)
	assert.False(t, upd.Crossed())
}

func TestBinanceCommandResponseIsNoUpdate(t *testing.T) {
	n := NewBinance("binance")
	_, ok, err := n.Decode([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBybitDecodesOrderbookSnapshot(t *testing.T) {
	n := NewBybit("bybit")
	raw := []byte(`{"topic":"orderbook.1.BTCUSDT","type":"snapshot","ts":1672304484978,` +
		`"data":{"s":"BTCUSDT","b":[["50010.00","0.006"]],"a":[["50010.80","0.029"]],"u":18521288,"seq":7961638724}}`)

	upd, ok, err := n.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, upd.BidPrice.Equal(decimal.RequireFromString("50010.00")))
	assert.True(t, upd.AskPrice.Equal(decimal.RequireFromString("50010.80")))
	assert.Equal(t, uint64(7961638724), upd.Sequence)
}

func TestBybitOneSidedDeltaIsNoUpdate(t *testing.T) {
	n := NewBybit("bybit")
	raw := []byte(`{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1672304484978,` +
		`"data":{"s":"BTCUSDT","b":[["50009.50","0.1"]],"a":[],"u":18521289,"seq":7961638725}}`)

	_, ok, err := n.Decode(raw)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBybitOperationalFramesAreNoUpdate(t *testing.T) {
	n := NewBybit("bybit")
	for _, raw := range []string{
		`{"success":true,"ret_msg":"","op":"subscribe","conn_id":"cejreaajvifl3s3dlkag"}`,
		`{"success":true,"ret_msg":"pong","op":"ping","conn_id":"cejreaajvifl3s3dlkag"}`,
	} {
		_, ok, err := n.Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestCoinbaseDecodesTicker(t *testing.T) {
	n := NewCoinbase("coinbase")
	raw := []byte(`{"type":"ticker","sequence":37475248783,"product_id":"BTC-USD","price":"50000.71",` +
		`"best_bid":"50000.50","best_bid_size":"0.46500000","best_ask":"50000.90","best_ask_size":"1.56284100",` +
		`"time":"2024-03-19T23:28:22.061769Z"}`)

	upd, ok, err := n.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, upd.BidPrice.Equal(decimal.RequireFromString("50000.50")))
	assert.True(t, upd.AskPrice.Equal(decimal.RequireFromString("50000.90")))
	assert.Equal(t, uint64(37475248783), upd.Sequence)
}

func TestCoinbaseEnvelopeRouting(t *testing.T) {
	n := NewCoinbase("coinbase")

	_, ok, err := n.Decode([]byte(`{"type":"subscriptions","channels":[{"name":"ticker","product_ids":["BTC-USD"]}]}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = n.Decode([]byte(`{"type":"heartbeat","sequence":90,"product_id":"BTC-USD","time":"2024-03-19T23:28:22.06Z"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = n.Decode([]byte(`{"type":"error","message":"Failed to subscribe","reason":"product not found"}`))
	var de *domain.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "coinbase", de.Exchange)
	assert.Contains(t, de.Reason, "Failed to subscribe")
}

func TestOKXDecodesBooks5(t *testing.T) {
	n := NewOKX("okx")
	raw := []byte(`{"arg":{"channel":"books5","instId":"BTC-USDT"},` +
		`"data":[{"asks":[["50010.80","0.19","0","4"]],"bids":[["50010.00","0.26","0","3"]],"ts":"1597026383085","seqId":123456}]}`)

	upd, ok, err := n.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, upd.BidPrice.Equal(decimal.RequireFromString("50010.00")))
	assert.True(t, upd.AskPrice.Equal(decimal.RequireFromString("50010.80")))
	assert.Equal(t, uint64(123456), upd.Sequence)
}

func TestOKXSequenceFallsBackToTimestamp(t *testing.T) {
	n := NewOKX("okx")
	raw := []byte(`{"arg":{"channel":"books5","instId":"BTC-USDT"},` +
		`"data":[{"asks":[["50010.80","0.19"]],"bids":[["50010.00","0.26"]],"ts":"1597026383085"}]}`)

	upd, ok, err := n.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1597026383085), upd.Sequence)
}

func TestOKXOperationalFrames(t *testing.T) {
	n := NewOKX("okx")

	_, ok, err := n.Decode([]byte(`pong`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = n.Decode([]byte(`{"event":"subscribe","arg":{"channel":"books5","instId":"BTC-USDT"},"connId":"a4d3ae55"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = n.Decode([]byte(`{"event":"error","code":"60012","msg":"Illegal request"}`))
	var de *domain.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "60012")
}

func TestMalformedPayloadsReturnTypedDecodeError(t *testing.T) {
	reg := NewRegistry()
	payloads := map[string]string{
		"binance":  `{"u":1,"s":"BTCUSDT","b":"not-a-number","B":"1","a":"50000.90","A":"1"}`,
		"bybit":    `{"topic":"orderbook.1.BTCUSDT","data":"nope"}`,
		"coinbase": `{"type":"24hr_stats","open":"1"}`,
		"okx":      `{{{`,
	}
	for variant, raw := range payloads {
		n, err := reg.New(variant, variant)
		require.NoError(t, err)

		_, ok, err := n.Decode([]byte(raw))
		assert.False(t, ok, variant)
		var de *domain.DecodeError
		require.ErrorAs(t, err, &de, "variant %s", variant)
		assert.Equal(t, variant, de.Exchange)
	}
}
