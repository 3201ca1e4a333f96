package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// OutcomeRepo keeps the ledger in process memory.
type OutcomeRepo struct {
	mu       sync.RWMutex
	outcomes map[string]*domain.Outcome
}

func NewOutcomeRepo() *OutcomeRepo {
	return &OutcomeRepo{outcomes: make(map[string]*domain.Outcome)}
}

func (r *OutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.outcomes[o.RequestID] = &cp
	return nil
}

func (r *OutcomeRepo) Recent(ctx context.Context, limit int) ([]*domain.Outcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Outcome, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SettledAt.After(out[j].SettledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutcomeRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, o := range r.outcomes {
		if o.SettledAt.Before(threshold) {
			delete(r.outcomes, id)
			n++
		}
	}
	return n, nil
}
