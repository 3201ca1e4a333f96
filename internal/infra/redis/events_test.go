package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

type mockXAdder struct {
	mu    sync.Mutex
	calls []*redis.XAddArgs
	err   error
}

func (m *mockXAdder) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func (m *mockXAdder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestEventPublisher_Publish(t *testing.T) {
	rdb := &mockXAdder{}
	p := NewEventPublisher(rdb, Config{MaxLen: 1000})

	id, err := p.Publish(context.Background(), domain.Event{
		EventType:   domain.EventTypeCompleted,
		RequestID:   "req-1",
		Network:     domain.NetworkTestnet,
		QueueLength: 2,
		TxHash:      "0xbeef",
		Duration:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "1700000000000-0" {
		t.Errorf("expected stream id, got %q", id)
	}

	args := rdb.calls[0]
	if args.Stream != DefaultStream {
		t.Errorf("expected stream %s, got %s", DefaultStream, args.Stream)
	}
	if args.MaxLen != 1000 || !args.Approx {
		t.Errorf("expected approximate trim to 1000, got %d approx=%v", args.MaxLen, args.Approx)
	}

	values := args.Values.(map[string]any)
	expected := map[string]any{
		"event":        "completed",
		"request_id":   "req-1",
		"network":      "testnet",
		"queue_length": "2",
		"tx_hash":      "0xbeef",
		"duration_ms":  "1500",
	}
	for k, want := range expected {
		if values[k] != want {
			t.Errorf("expected %s=%v, got %v", k, want, values[k])
		}
	}
	if _, ok := values["category"]; ok {
		t.Error("expected empty category to be omitted")
	}
}

func TestEventPublisher_NoTrimWhenMaxLenUnset(t *testing.T) {
	rdb := &mockXAdder{}
	p := NewEventPublisher(rdb, Config{Stream: "custom"})

	if _, err := p.Publish(context.Background(), domain.Event{EventType: domain.EventTypeCleared, Cleared: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := rdb.calls[0]
	if args.Stream != "custom" || args.MaxLen != 0 {
		t.Errorf("unexpected args: %+v", args)
	}
	if got := args.Values.(map[string]any)["cleared"]; got != "3" {
		t.Errorf("expected cleared=3, got %v", got)
	}
}

func TestEventPublisher_RunSurvivesErrors(t *testing.T) {
	rdb := &mockXAdder{err: errors.New("READONLY")}
	p := NewEventPublisher(rdb, Config{})

	events := make(chan domain.Event, 2)
	events <- domain.Event{EventType: domain.EventTypeEnqueued, RequestID: "a"}
	events <- domain.Event{EventType: domain.EventTypeProcessing, RequestID: "a"}
	close(events)

	if err := p.Run(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rdb.count(); got != 2 {
		t.Errorf("expected 2 publish attempts, got %d", got)
	}
}

func TestEventPublisher_RunStopsOnContext(t *testing.T) {
	p := NewEventPublisher(&mockXAdder{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx, make(chan domain.Event)); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
