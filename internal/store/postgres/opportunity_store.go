package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Prices travel as text on the wire so NUMERIC columns round-trip into
// decimals without loss.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a store backed by the given connection
// pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, buy_exchange, sell_exchange,
	buy_price::text, sell_price::text, profit_abs::text, profit_pct::text,
	max_input_age_ms, detected_at`

// Insert stores a detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, buy_exchange, sell_exchange,
			buy_price, sell_price, profit_abs, profit_pct,
			max_input_age_ms, detected_at
		) VALUES (
			$1, $2, $3,
			$4::numeric, $5::numeric, $6::numeric, $7::numeric,
			$8, $9
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.BuyExchange, opp.SellExchange,
		opp.BuyPrice.String(), opp.SellPrice.String(),
		opp.ProfitAbs.String(), opp.ProfitPct.String(),
		opp.MaxInputDataAge.Milliseconds(), opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return collectOpportunities(rows)
}

// ListBefore returns opportunities detected strictly before the given
// time, newest first. It is the paging primitive for history queries
// and the archiver.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + `
		FROM opportunities
		WHERE detected_at < $1
		ORDER BY detected_at DESC`
	args := []any{before}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectOpportunities(rows)
}

// Count returns the total number of stored opportunities.
func (s *OpportunityStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count opportunities: %w", err)
	}
	return count, nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}

func scanOpportunity(rows pgx.Rows) (domain.Opportunity, error) {
	var (
		opp       domain.Opportunity
		buyPrice  string
		sellPrice string
		profitAbs string
		profitPct string
		maxAgeMs  int64
	)

	if err := rows.Scan(
		&opp.ID, &opp.BuyExchange, &opp.SellExchange,
		&buyPrice, &sellPrice, &profitAbs, &profitPct,
		&maxAgeMs, &opp.DetectedAt,
	); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: scan opportunity: %w", err)
	}

	var err error
	if opp.BuyPrice, err = decimal.NewFromString(buyPrice); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: parse buy_price: %w", err)
	}
	if opp.SellPrice, err = decimal.NewFromString(sellPrice); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: parse sell_price: %w", err)
	}
	if opp.ProfitAbs, err = decimal.NewFromString(profitAbs); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: parse profit_abs: %w", err)
	}
	if opp.ProfitPct, err = decimal.NewFromString(profitPct); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: parse profit_pct: %w", err)
	}

	opp.MaxInputDataAge = time.Duration(maxAgeMs) * time.Millisecond
	return opp, nil
}
