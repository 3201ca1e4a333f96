package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// VKKind tags how a verification key is referenced on submission.
type VKKind string

const (
	// VKRegistered references a key already registered on chain by its hash.
	VKRegistered VKKind = "registered"
	// VKInline carries the full key with the submission.
	VKInline VKKind = "inline"
)

// VKRef is the verification key attached verbatim to every submission.
type VKRef struct {
	Kind VKKind          `json:"kind"`
	Hash string          `json:"hash,omitempty"`
	Key  json.RawMessage `json:"key,omitempty"`
}

// RegisteredVK builds a reference to a registered key hash.
func RegisteredVK(hash string) VKRef {
	return VKRef{Kind: VKRegistered, Hash: hash}
}

// InlineVK builds a reference carrying the full key.
func InlineVK(key json.RawMessage) VKRef {
	return VKRef{Kind: VKInline, Key: key}
}

// SubmissionRequest is one caller's proof-verification ask.
// Only RetryCount changes after creation.
type SubmissionRequest struct {
	ID            string          `json:"id"`
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"public_signals"` // [0] total, [1] session id, [2] player address
	VK            VKRef           `json:"vk"`
	Network       Network         `json:"network"`
	CreatedAt     time.Time       `json:"created_at"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
}

// TxResult is what the chain returns for an accepted submission.
type TxResult struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"tx_hash"`
	BlockHash   string `json:"block_hash,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

var registeredVKHash = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsRegisteredVKHash reports whether s is a 0x-prefixed 32-byte hex hash.
func IsRegisteredVKHash(s string) bool {
	return registeredVKHash.MatchString(s)
}

// Validate checks the tagged variant carries what it needs.
func (v VKRef) Validate() error {
	switch v.Kind {
	case VKRegistered:
		if !IsRegisteredVKHash(v.Hash) {
			return fmt.Errorf("invalid registered vk hash %q", v.Hash)
		}
	case VKInline:
		if len(v.Key) == 0 || !json.Valid(v.Key) {
			return fmt.Errorf("invalid inline vk: not a JSON document")
		}
	default:
		return fmt.Errorf("invalid vk kind %q", v.Kind)
	}
	return nil
}
