package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a detected cross-exchange spread: buy at BuyExchange's ask,
// sell at SellExchange's bid, before fees. ProfitPct is in percent of the
// buy price. MaxInputDataAge is the age of the older of the two quotes at
// detection time, so consumers can judge how current the inputs were.
type Opportunity struct {
	ID              string          `json:"id"`
	BuyExchange     string          `json:"buy_exchange"`
	SellExchange    string          `json:"sell_exchange"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	ProfitAbs       decimal.Decimal `json:"profit_abs"`
	ProfitPct       decimal.Decimal `json:"profit_pct"`
	MaxInputDataAge time.Duration   `json:"max_input_data_age"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// Route identifies the directed pair, e.g. "binance->coinbase".
func (o Opportunity) Route() string {
	return o.BuyExchange + "->" + o.SellExchange
}
