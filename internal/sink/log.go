package sink

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Log records every event in the structured log. It is the always-on
// sink, wired regardless of which backends are configured.
type Log struct {
	logger *slog.Logger
}

var _ Sink = (*Log)(nil)

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("component", "sink_log"))}
}

func (l *Log) Name() string { return "log" }

func (l *Log) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	l.logger.InfoContext(ctx, "opportunity recorded",
		slog.String("id", opp.ID),
		slog.String("route", opp.Route()),
		slog.String("buy_price", opp.BuyPrice.String()),
		slog.String("sell_price", opp.SellPrice.String()),
		slog.String("profit_abs", opp.ProfitAbs.String()),
		slog.String("profit_pct", opp.ProfitPct.Round(4).String()),
		slog.Duration("max_input_age", opp.MaxInputDataAge))
	return nil
}

func (l *Log) HandleHealth(ctx context.Context, exchange string, state domain.ConnState) error {
	l.logger.InfoContext(ctx, "venue health recorded",
		slog.String("exchange", exchange),
		slog.String("state", state.String()))
	return nil
}
