package storage

import (
	"context"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// OutcomeRepository is the audit ledger of settled requests.
type OutcomeRepository interface {
	// Save records an outcome. Saving the same request twice keeps the latest.
	Save(ctx context.Context, outcome *domain.Outcome) error

	// Recent returns up to limit outcomes, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Outcome, error)

	// DeleteOlderThan removes outcomes settled before the threshold.
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}
