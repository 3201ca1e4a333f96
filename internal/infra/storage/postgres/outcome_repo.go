package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// OutcomeRepo implements storage.OutcomeRepository using PostgreSQL.
type OutcomeRepo struct {
	db *DB
}

// NewOutcomeRepo creates a new PostgreSQL outcome repository.
func NewOutcomeRepo(db *DB) *OutcomeRepo {
	return &OutcomeRepo{db: db}
}

type outcomeRow struct {
	RequestID     string         `db:"request_id"`
	Network       string         `db:"network"`
	Status        string         `db:"status"`
	TxHash        string         `db:"tx_hash"`
	Category      string         `db:"category"`
	Error         string         `db:"error"`
	RetryCount    int            `db:"retry_count"`
	DurationMs    int64          `db:"duration_ms"`
	PublicSignals pq.StringArray `db:"public_signals"`
	SettledAt     time.Time      `db:"settled_at"`
}

func newOutcomeRow(o *domain.Outcome) outcomeRow {
	signals := o.PublicSignals
	if signals == nil {
		signals = []string{}
	}
	settled := o.SettledAt
	if settled.IsZero() {
		settled = time.Now()
	}
	return outcomeRow{
		RequestID:     o.RequestID,
		Network:       string(o.Network),
		Status:        string(o.Status),
		TxHash:        o.TxHash,
		Category:      o.Category,
		Error:         o.Error,
		RetryCount:    o.RetryCount,
		DurationMs:    o.Duration.Milliseconds(),
		PublicSignals: signals,
		SettledAt:     settled.UTC(),
	}
}

func (r *outcomeRow) toDomain() *domain.Outcome {
	return &domain.Outcome{
		RequestID:     r.RequestID,
		Network:       domain.Network(r.Network),
		Status:        domain.OutcomeStatus(r.Status),
		TxHash:        r.TxHash,
		Category:      r.Category,
		Error:         r.Error,
		RetryCount:    r.RetryCount,
		Duration:      time.Duration(r.DurationMs) * time.Millisecond,
		PublicSignals: []string(r.PublicSignals),
		SettledAt:     r.SettledAt,
	}
}

// Save upserts an outcome by request id.
func (r *OutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error {
	query := `
		INSERT INTO outcomes (
			request_id, network, status, tx_hash, category, error,
			retry_count, duration_ms, public_signals, settled_at
		) VALUES (
			:request_id, :network, :status, :tx_hash, :category, :error,
			:retry_count, :duration_ms, :public_signals, :settled_at
		)
		ON CONFLICT (request_id) DO UPDATE SET
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			category = EXCLUDED.category,
			error = EXCLUDED.error,
			retry_count = EXCLUDED.retry_count,
			duration_ms = EXCLUDED.duration_ms,
			settled_at = EXCLUDED.settled_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, newOutcomeRow(o)); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (r *OutcomeRepo) Recent(ctx context.Context, limit int) ([]*domain.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT request_id, network, status, tx_hash, category, error,
		       retry_count, duration_ms, public_signals, settled_at
		FROM outcomes
		ORDER BY settled_at DESC
		LIMIT $1
	`
	var rows []outcomeRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	out := make([]*domain.Outcome, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// DeleteOlderThan removes outcomes settled before threshold.
func (r *OutcomeRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outcomes WHERE settled_at < $1`, threshold.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return res.RowsAffected()
}
