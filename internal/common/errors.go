// Package common defines shared constants and sentinel errors used across
// the POS offline core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Storage engine error kinds surfaced by the store layer.
	ErrAborted            = errors.New("transaction aborted")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrConstraintViolated = errors.New("constraint violation")
	ErrInvalidState       = errors.New("invalid state")

	// Auth / credential cache errors.
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")

	// Remote collaborator errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrTokenExpired = errors.New("token expired")

	// Snapshot errors.
	ErrSnapshotUnusable = errors.New("snapshot unusable")
)
