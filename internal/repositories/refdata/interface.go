// Package refdata stores last-known-good snapshots of server-provided
// catalog and config records, keyed by (collection, record id).
package refdata

import (
	"context"

	"github.com/pdcpos/posoffline/internal/models"
)

type Repository interface {
	Put(ctx context.Context, rec *models.ReferenceRecord) error
	BulkPut(ctx context.Context, recs []*models.ReferenceRecord) error
	ListByCollection(ctx context.Context, collection string) ([]*models.ReferenceRecord, error)
	Collections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, collection string) error
	Clear(ctx context.Context) error
}
