package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/storage/memory"
)

// ===== Pruner =====

type mockOutcomeRepo struct {
	mu        sync.Mutex
	threshold time.Time
	deletes   int
	err       error
}

func (m *mockOutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error { return m.err }

func (m *mockOutcomeRepo) Recent(ctx context.Context, limit int) ([]*domain.Outcome, error) {
	return nil, nil
}

func (m *mockOutcomeRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
	m.deletes++
	return 1, m.err
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		expected  time.Duration
	}{
		{5 * time.Minute, time.Minute},
		{2 * time.Hour, 12 * time.Minute},
		{30 * 24 * time.Hour, time.Hour},
	}

	for _, tt := range tests {
		p := NewPruner(tt.retention, &mockOutcomeRepo{})
		if got := p.Interval(); got != tt.expected {
			t.Errorf("retention %s: expected interval %s, got %s", tt.retention, tt.expected, got)
		}
	}
}

func TestPruner_PruneUsesRetention(t *testing.T) {
	repo := &mockOutcomeRepo{}
	p := NewPruner(24*time.Hour, repo)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.Prune(context.Background())

	if !repo.threshold.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("expected threshold %s, got %s", now.Add(-24*time.Hour), repo.threshold)
	}
}

func TestPruner_PruneDeletesOldOutcomes(t *testing.T) {
	repo := memory.NewOutcomeRepo()
	ctx := context.Background()
	now := time.Now()

	_ = repo.Save(ctx, &domain.Outcome{RequestID: "old", SettledAt: now.Add(-48 * time.Hour)})
	_ = repo.Save(ctx, &domain.Outcome{RequestID: "new", SettledAt: now.Add(-time.Hour)})

	NewPruner(24*time.Hour, repo).Prune(ctx)

	left, _ := repo.Recent(ctx, 10)
	if len(left) != 1 || left[0].RequestID != "new" {
		t.Errorf("expected only the recent outcome to remain, got %d", len(left))
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	repo := &mockOutcomeRepo{}
	done := make(chan struct{})
	go func() {
		NewPruner(0, repo).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return when retention is disabled")
	}
	if repo.deletes != 0 {
		t.Errorf("expected no deletes, got %d", repo.deletes)
	}
}

func TestPruner_StartPrunesOnceThenStops(t *testing.T) {
	repo := &mockOutcomeRepo{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPruner(time.Hour, repo).Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		repo.mu.Lock()
		n := repo.deletes
		repo.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected initial prune")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return on cancel")
	}
}

// ===== LedgerWriter =====

func TestLedgerWriter_RecordsTerminalEvents(t *testing.T) {
	repo := memory.NewOutcomeRepo()
	w := NewLedgerWriter(repo)

	settled := time.Now()
	events := make(chan domain.Event, 4)
	events <- domain.Event{EventType: domain.EventTypeEnqueued, RequestID: "a"}
	events <- domain.Event{EventType: domain.EventTypeCompleted, RequestID: "a", TxHash: "0x1", EmittedAt: settled}
	events <- domain.Event{EventType: domain.EventTypeRetry, RequestID: "b"}
	events <- domain.Event{EventType: domain.EventTypeFailed, RequestID: "b", Category: "TransactionError", EmittedAt: settled.Add(time.Second)}
	close(events)

	if err := w.Run(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := repo.Recent(context.Background(), 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got))
	}
	if got[0].RequestID != "b" || got[0].Status != domain.OutcomeFailed {
		t.Errorf("expected newest to be failed b, got %+v", got[0])
	}
	if got[1].TxHash != "0x1" || got[1].Status != domain.OutcomeCompleted {
		t.Errorf("expected completed a with tx hash, got %+v", got[1])
	}
}

func TestLedgerWriter_SaveErrorDoesNotStop(t *testing.T) {
	w := NewLedgerWriter(&mockOutcomeRepo{err: errors.New("db down")})

	events := make(chan domain.Event, 2)
	events <- domain.Event{EventType: domain.EventTypeTimeout, RequestID: "a"}
	events <- domain.Event{EventType: domain.EventTypeCompleted, RequestID: "b"}
	close(events)

	if err := w.Run(context.Background(), events); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
