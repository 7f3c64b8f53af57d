package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities for history queries and
// archival. The detector itself never reads it back.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Opportunity, error)
	Count(ctx context.Context) (int64, error)
}
