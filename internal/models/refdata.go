package models

import (
	"encoding/json"
	"time"
)

// ReferenceRecord is one last-known-good record of server-provided catalog or
// config data, keyed by (collection, record id). Staleness is observable via
// CachedAt.
type ReferenceRecord struct {
	Collection string
	RecordID   string
	Payload    json.RawMessage
	CachedAt   time.Time
}
