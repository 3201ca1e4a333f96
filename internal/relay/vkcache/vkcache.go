// Package vkcache resolves the verification key attached to every submission.
package vkcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

var (
	// ErrNoKey is returned when neither a hash nor a key file is configured.
	ErrNoKey = errors.New("no verification key configured")
	// ErrInvalidHash is returned for a registered hash that is not 0x + 64 hex.
	ErrInvalidHash = errors.New("invalid verification key hash")
	// ErrInvalidKey is returned for a key file that is empty or not JSON.
	ErrInvalidKey = errors.New("invalid verification key file")
)

// Source is where the key comes from. A registered hash wins over a file.
type Source struct {
	Hash string
	File string
}

// Load resolves src once. The returned reference is never modified.
func Load(src Source) (domain.VKRef, error) {
	hash := strings.TrimSpace(src.Hash)
	if hash != "" {
		if !domain.IsRegisteredVKHash(hash) {
			return domain.VKRef{}, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
		slog.Info("Using registered verification key", "hash", hash)
		return domain.RegisteredVK(hash), nil
	}

	if src.File == "" {
		return domain.VKRef{}, ErrNoKey
	}

	data, err := os.ReadFile(src.File)
	if err != nil {
		return domain.VKRef{}, fmt.Errorf("read verification key: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return domain.VKRef{}, fmt.Errorf("%w: %s is empty", ErrInvalidKey, src.File)
	}
	if !json.Valid(data) {
		return domain.VKRef{}, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidKey, src.File)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return domain.VKRef{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	slog.Info("Loaded inline verification key", "file", src.File, "bytes", compact.Len())
	return domain.InlineVK(compact.Bytes()), nil
}
