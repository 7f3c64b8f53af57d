package sink

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Store persists opportunities for later querying. Health transitions
// are not stored.
type Store struct {
	store domain.OpportunityStore
}

var _ Sink = (*Store)(nil)

func NewStore(store domain.OpportunityStore) *Store {
	return &Store{store: store}
}

func (s *Store) Name() string { return "store" }

func (s *Store) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	if err := s.store.Insert(ctx, opp); err != nil {
		return fmt.Errorf("sink store: insert: %w", err)
	}
	return nil
}

func (s *Store) HandleHealth(context.Context, string, domain.ConnState) error {
	return nil
}
