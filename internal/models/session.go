// Package models contains the persisted record types of the POS offline
// core: sessions, cached credentials, offline transactions, sync errors and
// cached reference data.
package models

import (
	"fmt"
	"time"
)

// Session is one authenticated working session, scoped to a single
// tab/instance of the terminal. At most one active session exists per
// (owner, tab) pair.
type Session struct {
	ID          string
	OwnerID     string
	TabID       string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	HeartbeatAt time.Time
}

// Key returns the storage key for this session, scoped by owner and tab so
// two tabs of the same user never collide.
func (s *Session) Key() string {
	return fmt.Sprintf("user_%s_tab_%s", s.OwnerID, s.TabID)
}

// Expired reports whether the session has an expiry in the past.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
