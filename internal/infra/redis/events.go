package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// xadder is the part of the client the publisher needs.
type xadder interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// EventPublisher appends queue lifecycle events to a Redis stream.
type EventPublisher struct {
	rdb    xadder
	stream string
	maxLen int64
	log    *slog.Logger
}

// NewEventPublisher creates a publisher for cfg.Stream.
func NewEventPublisher(rdb xadder, cfg Config) *EventPublisher {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &EventPublisher{
		rdb:    rdb,
		stream: stream,
		maxLen: cfg.MaxLen,
		log:    slog.Default().With("component", "event-stream"),
	}
}

// Publish appends one event and returns the stream entry id.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) (string, error) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: eventValues(ev),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s failed: %w", p.stream, err)
	}
	return id, nil
}

// Run publishes events until the channel closes or ctx is done.
// Publish failures are logged and the event is dropped.
func (p *EventPublisher) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := p.Publish(ctx, ev); err != nil {
				p.log.Warn("Dropping lifecycle event",
					"event", ev.EventType,
					"request_id", ev.RequestID,
					"error", err)
			}
		}
	}
}

func eventValues(ev domain.Event) map[string]any {
	v := map[string]any{
		"event":        string(ev.EventType),
		"queue_length": strconv.Itoa(ev.QueueLength),
		"retry_count":  strconv.Itoa(ev.RetryCount),
		"emitted_at":   strconv.FormatInt(ev.EmittedAt.UnixMilli(), 10),
	}
	if ev.RequestID != "" {
		v["request_id"] = ev.RequestID
	}
	if ev.Network != "" {
		v["network"] = string(ev.Network)
	}
	if ev.TxHash != "" {
		v["tx_hash"] = ev.TxHash
	}
	if ev.Category != "" {
		v["category"] = ev.Category
	}
	if ev.Error != "" {
		v["error"] = ev.Error
	}
	if ev.EventType == domain.EventTypeCleared {
		v["cleared"] = strconv.Itoa(ev.Cleared)
	}
	if ev.Duration > 0 {
		v["duration_ms"] = strconv.FormatInt(ev.Duration.Milliseconds(), 10)
	}
	return v
}
