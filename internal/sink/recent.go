package sink

import (
	"context"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const defaultRecentLimit = 100

// Recent keeps the most recent opportunities in memory for the API and
// the status report. Oldest entries fall off once the limit is reached.
type Recent struct {
	mu    sync.Mutex
	opps  []domain.Opportunity
	total uint64
	limit int
}

var _ Sink = (*Recent)(nil)

func NewRecent(limit int) *Recent {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return &Recent{limit: limit}
}

func (r *Recent) Name() string { return "recent" }

func (r *Recent) HandleOpportunity(_ context.Context, opp domain.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.opps) >= r.limit {
		r.opps = r.opps[1:]
	}
	r.opps = append(r.opps, opp)
	r.total++
	return nil
}

func (r *Recent) HandleHealth(context.Context, string, domain.ConnState) error {
	return nil
}

// List returns up to limit opportunities, newest first. limit <= 0 means
// everything retained.
func (r *Recent) List(limit int) []domain.Opportunity {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.opps)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Opportunity, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.opps[n-1-i]
	}
	return out
}

// Total reports how many opportunities were recorded since start,
// including ones that have fallen off the ring.
func (r *Recent) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
