// Package remote talks to the backend: pushing offline transaction batches,
// loading reference data and authenticating the terminal. The backend
// deduplicates pushed items by idempotency key; submitting the same key
// twice yields one logical effect and one outcome.
package remote

import (
	"context"
	"encoding/json"
)

// BatchItem is one offline transaction in a push batch.
type BatchItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
}

// Outcome is the backend's per-item verdict.
type Outcome struct {
	IdempotencyKey string `json:"idempotency_key"`
	OK             bool   `json:"ok"`
	ErrorKind      string `json:"error_kind,omitempty"`
	Message        string `json:"message,omitempty"`
}

// LoginResult carries what the terminal needs to keep working offline later.
type LoginResult struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
}

type Client interface {
	// Login authenticates and stores the session tokens inside the client.
	Login(ctx context.Context, login string, secret []byte) (*LoginResult, error)

	// PushBatch submits items for server-side processing. The returned
	// slice holds one outcome per distinct idempotency key. A transport
	// failure returns an error and no outcomes; nothing may be assumed
	// about items in that case.
	PushBatch(ctx context.Context, items []BatchItem) ([]Outcome, error)

	// FetchReference loads a reference-data collection. The payload shape
	// varies by producer; callers normalize it.
	FetchReference(ctx context.Context, collection string) (json.RawMessage, error)

	Close() error
}
