// Package transactions stores offline-originated writes pending remote
// confirmation. Rows move pending → syncing → synced/failed, with
// failed → pending allowed when a failed row is requeued for retry.
package transactions

import (
	"context"
	"time"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	Insert(ctx context.Context, t *models.OfflineTransaction) error
	GetByID(ctx context.Context, id string) (*models.OfflineTransaction, error)

	// ListPending returns up to limit pending rows in FIFO order:
	// creation time first, insertion sequence as the tie-break.
	ListPending(ctx context.Context, limit int) ([]*models.OfflineTransaction, error)

	// OldestPending returns the head of the FIFO order, or common.ErrNotFound.
	OldestPending(ctx context.Context) (*models.OfflineTransaction, error)

	CountByStatus(ctx context.Context, status models.TxStatus) (int, error)

	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, message string) error
	IncrementAttempt(ctx context.Context, id string) error

	// RequeueFailed flips failed rows with fewer than maxAttempts attempts
	// back to pending, returning the number of rows requeued.
	RequeueFailed(ctx context.Context, maxAttempts int) (int64, error)

	DeleteByID(ctx context.Context, id string) error
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
