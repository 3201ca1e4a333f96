package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/storage"
)

// LedgerWriter records terminal queue events in the outcome ledger.
type LedgerWriter struct {
	repo    storage.OutcomeRepository
	timeout time.Duration
	log     *slog.Logger
}

// NewLedgerWriter creates a writer that saves into repo.
func NewLedgerWriter(repo storage.OutcomeRepository) *LedgerWriter {
	return &LedgerWriter{
		repo:    repo,
		timeout: 5 * time.Second,
		log:     slog.Default().With("component", "ledger"),
	}
}

// Run saves outcomes until the channel closes or ctx is done.
func (w *LedgerWriter) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.record(ctx, ev)
		}
	}
}

func (w *LedgerWriter) record(ctx context.Context, ev domain.Event) {
	outcome, ok := domain.OutcomeFromEvent(ev)
	if !ok {
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.repo.Save(saveCtx, outcome); err != nil {
		w.log.Error("Failed to record outcome",
			"request_id", outcome.RequestID,
			"status", outcome.Status,
			"error", err)
	}
}
