// Package sessions stores Session records, scoped by (owner id, tab id) so
// concurrent tabs sharing the store never touch each other's session.
package sessions

import (
	"context"
	"time"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	// Put inserts or replaces the session for its (owner, tab) pair.
	Put(ctx context.Context, s *models.Session) error
	GetByTab(ctx context.Context, ownerID, tabID string) (*models.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Session, error)
	Heartbeat(ctx context.Context, id string, at time.Time, expiresAt *time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
