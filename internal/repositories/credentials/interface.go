// Package credentials stores locally verifiable copies of user auth secrets.
// Only precomputed hashes are persisted, never plaintext.
package credentials

import (
	"context"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	// Put inserts or overwrites the cached credential for its user.
	Put(ctx context.Context, c *models.Credential) error
	GetByLogin(ctx context.Context, login string) (*models.Credential, error)
	Delete(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}
