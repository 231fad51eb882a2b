// Package syncerrors stores durable records of failed sync attempts.
// A failure is always written here before its in-memory error is discarded.
package syncerrors

import (
	"context"
	"time"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	Insert(ctx context.Context, rec *models.SyncErrorRecord) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.SyncErrorRecord, error)
	Count(ctx context.Context) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
