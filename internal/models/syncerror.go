package models

import "time"

// SyncErrorRecord is a durable record of a failed sync attempt. It is always
// written before the in-memory error is discarded, so failures survive a
// process restart.
type SyncErrorRecord struct {
	ID            int64
	TransactionID string
	Kind          string
	Message       string
	CreatedAt     time.Time
}
