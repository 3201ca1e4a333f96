package domain

import "time"

// OutcomeStatus is the terminal state of a request recorded in the ledger.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimeout   OutcomeStatus = "timeout"
)

// Outcome is one audit record of a settled request. It is never read back
// into the queue.
type Outcome struct {
	RequestID     string        `json:"request_id"     db:"request_id"`
	Network       Network       `json:"network"        db:"network"`
	Status        OutcomeStatus `json:"status"         db:"status"`
	TxHash        string        `json:"tx_hash"        db:"tx_hash"`
	Category      string        `json:"category"       db:"category"`
	Error         string        `json:"error"          db:"error"`
	RetryCount    int           `json:"retry_count"    db:"retry_count"`
	Duration      time.Duration `json:"duration"       db:"-"`
	PublicSignals []string      `json:"public_signals" db:"-"`
	SettledAt     time.Time     `json:"settled_at"     db:"settled_at"`
}

// OutcomeFromEvent converts a terminal event. ok is false for other events.
func OutcomeFromEvent(ev Event) (*Outcome, bool) {
	var status OutcomeStatus
	switch ev.EventType {
	case EventTypeCompleted:
		status = OutcomeCompleted
	case EventTypeFailed:
		status = OutcomeFailed
	case EventTypeTimeout:
		status = OutcomeTimeout
	default:
		return nil, false
	}
	return &Outcome{
		RequestID:     ev.RequestID,
		Network:       ev.Network,
		Status:        status,
		TxHash:        ev.TxHash,
		Category:      ev.Category,
		Error:         ev.Error,
		RetryCount:    ev.RetryCount,
		Duration:      ev.Duration,
		PublicSignals: ev.Signals,
		SettledAt:     ev.EmittedAt,
	}, true
}
