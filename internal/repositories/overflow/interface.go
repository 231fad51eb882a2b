// Package overflow is the durable overflow log the queue's archive-oldest
// policy moves displaced transactions into. Nothing is ever silently dropped:
// archived items stay here until the retention pass prunes them.
package overflow

import (
	"context"
	"time"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	Insert(ctx context.Context, t *models.ArchivedTransaction) error
	List(ctx context.Context) ([]*models.ArchivedTransaction, error)
	Count(ctx context.Context) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
