package domain

import "time"

// TxStatus is the coarse progress of the transaction in the active slot.
type TxStatus string

const (
	TxStatusSubmitting TxStatus = "submitting"
	TxStatusInBlock    TxStatus = "in-block"
	TxStatusFinalizing TxStatus = "finalizing"
	// TxStatusRetrying marks an item waiting out its retry delay.
	TxStatusRetrying TxStatus = "retrying"
)

// TxProgress is reported by a submitter while a submission is in flight.
type TxProgress struct {
	Status    TxStatus
	TxHash    string
	BlockHash string
}

// ActiveTransactionInfo is a snapshot of the item currently being submitted.
type ActiveTransactionInfo struct {
	RequestID  string    `json:"request_id"`
	TxHash     string    `json:"tx_hash,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	RetryCount int       `json:"retry_count"`
	Status     TxStatus  `json:"status"`
}

// QueueStatus is a read-only aggregate recomputed on demand.
type QueueStatus struct {
	QueueLength     int                    `json:"queue_length"`
	Active          *ActiveTransactionInfo `json:"active,omitempty"`
	InFlight        int                    `json:"in_flight"`
	LastCompletedAt *time.Time             `json:"last_completed_at,omitempty"`
	Processed       int64                  `json:"processed"`
	Failed          int64                  `json:"failed"`
	ShuttingDown    bool                   `json:"shutting_down"`
	Connection      ConnectionState        `json:"connection,omitempty"`
}
