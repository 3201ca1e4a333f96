package metrics

import (
	"context"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

var connectionStates = []domain.ConnectionState{
	domain.ConnStateDisconnected,
	domain.ConnStateConnecting,
	domain.ConnStateConnected,
	domain.ConnStateReconnecting,
	domain.ConnStateGivingUp,
	domain.ConnStateShuttingDown,
}

// ObserveEvent updates the queue metrics for one lifecycle event.
func ObserveEvent(ev domain.Event) {
	network := string(ev.Network)

	switch ev.EventType {
	case domain.EventTypeEnqueued, domain.EventTypeProcessing:
		QueueDepth.Set(float64(ev.QueueLength))
	case domain.EventTypeRetry:
		QueueDepth.Set(float64(ev.QueueLength))
		RetriesTotal.WithLabelValues(network).Inc()
	case domain.EventTypeCompleted, domain.EventTypeFailed, domain.EventTypeTimeout:
		QueueDepth.Set(float64(ev.QueueLength))
		outcome := string(ev.EventType)
		SubmissionsTotal.WithLabelValues(network, outcome).Inc()
		if ev.Duration > 0 {
			SubmissionLatency.WithLabelValues(network, outcome).Observe(ev.Duration.Seconds())
		}
		if ev.EventType == domain.EventTypeFailed {
			FailuresTotal.WithLabelValues(ev.Category).Inc()
		}
	case domain.EventTypeCleared:
		QueueDepth.Set(0)
		QueueClearedTotal.Add(float64(ev.Cleared))
	}
}

// ObserveConnection records a connection state change.
func ObserveConnection(from, to domain.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == to {
			v = 1
		}
		ConnectionState.WithLabelValues(string(s)).Set(v)
	}
	if from == domain.ConnStateReconnecting && to == domain.ConnStateConnecting {
		ReconnectAttempts.Inc()
	}
}

// Consume records events until the channel closes or ctx is done.
func Consume(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ObserveEvent(ev)
		}
	}
}
