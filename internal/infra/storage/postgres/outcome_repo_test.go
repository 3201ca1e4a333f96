package postgres

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/storage"
)

var _ storage.OutcomeRepository = (*OutcomeRepo)(nil)

func TestOutcomeRow_RoundTrip(t *testing.T) {
	settled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &domain.Outcome{
		RequestID:     "018f-abc",
		Network:       domain.NetworkTestnet,
		Status:        domain.OutcomeFailed,
		Category:      "TransactionError",
		Error:         "insufficient funds",
		RetryCount:    1,
		Duration:      1500 * time.Millisecond,
		PublicSignals: []string{"100", "session", "0xplayer"},
		SettledAt:     settled,
	}

	row := newOutcomeRow(o)
	if row.DurationMs != 1500 {
		t.Errorf("expected 1500ms, got %d", row.DurationMs)
	}

	got := row.toDomain()
	if !reflect.DeepEqual(got, o) {
		t.Errorf("expected %+v, got %+v", o, got)
	}
}

func TestOutcomeRow_Defaults(t *testing.T) {
	row := newOutcomeRow(&domain.Outcome{RequestID: "x"})
	if row.PublicSignals == nil {
		t.Error("expected empty signal array, got nil")
	}
	if row.SettledAt.IsZero() {
		t.Error("expected settled time to default to now")
	}
}

func TestOutcomeRepo_Live(t *testing.T) {
	url := os.Getenv("ZKRELAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping live ledger test. Set ZKRELAY_TEST_DATABASE_URL to run.")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewOutcomeRepo(db)

	id := "live-" + time.Now().Format("150405.000000")
	old := &domain.Outcome{
		RequestID: id,
		Network:   domain.NetworkLocal,
		Status:    domain.OutcomeCompleted,
		TxHash:    "0xfeed",
		SettledAt: time.Now().Add(-48 * time.Hour),
	}
	if err := repo.Save(ctx, old); err != nil {
		t.Fatalf("save: %v", err)
	}

	recent, err := repo.Recent(ctx, 1000)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	found := false
	for _, o := range recent {
		if o.RequestID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in recent outcomes", id)
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least 1 pruned outcome, got %d", n)
	}
}
