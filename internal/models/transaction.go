package models

import (
	"encoding/json"
	"time"
)

// TxStatus is the sync lifecycle state of an offline transaction.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSyncing TxStatus = "syncing"
	TxSynced  TxStatus = "synced"
	TxFailed  TxStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s TxStatus) Valid() bool {
	switch s {
	case TxPending, TxSyncing, TxSynced, TxFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Transitions are monotonic (pending → syncing → synced/failed), with the
// single exception of failed → pending when a failed item is requeued.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	switch s {
	case TxPending:
		return next == TxSyncing || next == TxSynced || next == TxFailed
	case TxSyncing:
		return next == TxSynced || next == TxFailed
	case TxFailed:
		return next == TxPending
	}
	return false
}

// OfflineTransaction is a locally originated write pending remote
// confirmation. The idempotency key is assigned once at enqueue time and is
// immutable afterwards; it is the sole deduplication signal the remote uses.
type OfflineTransaction struct {
	ID             string
	IdempotencyKey string
	Payload        json.RawMessage
	Status         TxStatus
	Attempts       int
	CreatedAt      time.Time
	SyncedAt       *time.Time
	LastError      string
}

// ArchivedTransaction is an offline transaction moved to the durable
// overflow log by the queue's archive-oldest policy.
type ArchivedTransaction struct {
	ID             string
	IdempotencyKey string
	Payload        json.RawMessage
	CreatedAt      time.Time
	ArchivedAt     time.Time
}
