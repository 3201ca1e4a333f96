package domain

import "time"

// Event is an advisory queue lifecycle notification.
type Event struct {
	EventType   EventType     `json:"event_type"`
	RequestID   string        `json:"request_id,omitempty"`
	Network     Network       `json:"network,omitempty"`
	Signals     []string      `json:"public_signals,omitempty"`
	QueueLength int           `json:"queue_length"`
	RetryCount  int           `json:"retry_count"`
	TxHash      string        `json:"tx_hash,omitempty"`
	Category    string        `json:"category,omitempty"`
	Error       string        `json:"error,omitempty"`
	Cleared     int           `json:"cleared,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	EmittedAt   time.Time     `json:"emitted_at"`
}

type EventType string

const (
	EventTypeEnqueued   EventType = "enqueued"
	EventTypeProcessing EventType = "processing"
	EventTypeRetry      EventType = "retry"
	EventTypeCompleted  EventType = "completed"
	EventTypeFailed     EventType = "failed"
	EventTypeTimeout    EventType = "timeout"
	EventTypeCleared    EventType = "cleared"
)

// IsTerminal reports whether the event closes a request's lifecycle.
func (t EventType) IsTerminal() bool {
	return t == EventTypeCompleted || t == EventTypeFailed || t == EventTypeTimeout
}
