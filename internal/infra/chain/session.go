// Package chain defines the boundary between the relay core and the remote
// verification chain node.
package chain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// ErrNotConnected is returned when no live session exists. A submission that
// fails with it was never dispatched to the chain.
var ErrNotConnected = errors.New("chain session not connected")

// ProgressFunc receives intermediate status of an in-flight submission.
type ProgressFunc func(domain.TxProgress)

// Session is one live connection to the chain node.
// The interface is intentionally small so that transports stay swappable.
type Session interface {
	// SubmitProof submits a proof as a verification transaction and blocks
	// until the chain accepts or rejects it.
	SubmitProof(
		ctx context.Context,
		req *domain.SubmissionRequest,
		progress ProgressFunc,
	) (*domain.TxResult, error)

	// Done is closed once the session is lost or closed.
	Done() <-chan struct{}

	// Err returns the reason Done was closed, if any.
	Err() error

	// Close tears the session down.
	Close() error
}

// Dialer opens sessions. A successful Dial includes the handshake.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// SubmitParams is the payload sent to the chain for one proof.
type SubmitParams struct {
	RequestID     string          `json:"requestId"`
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"publicSignals"`
	VKHash        string          `json:"vkHash,omitempty"`
	VK            json.RawMessage `json:"vk,omitempty"`
	Network       string          `json:"network"`
}

// NewSubmitParams builds the payload, resolving the key by hash or inline.
func NewSubmitParams(req *domain.SubmissionRequest) SubmitParams {
	p := SubmitParams{
		RequestID:     req.ID,
		Proof:         req.Proof,
		PublicSignals: req.PublicSignals,
		Network:       string(req.Network),
	}
	switch req.VK.Kind {
	case domain.VKRegistered:
		p.VKHash = req.VK.Hash
	case domain.VKInline:
		p.VK = req.VK.Key
	}
	return p
}

// SubmitReply is the chain's answer to a submission.
type SubmitReply struct {
	TxHash      string `json:"txHash"`
	BlockHash   string `json:"blockHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}
