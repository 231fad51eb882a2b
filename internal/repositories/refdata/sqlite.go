package refdata

import (
	"context"
	"fmt"
	"time"

	"github.com/pdcpos/posoffline/internal/dbx"
	"github.com/pdcpos/posoffline/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const upsertQuery = `
	INSERT INTO reference_data (collection, record_id, payload, cached_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, record_id) DO UPDATE SET
		payload = excluded.payload,
		cached_at = excluded.cached_at
`

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.ReferenceRecord) error {
	_, err := r.db.ExecContext(ctx, upsertQuery,
		rec.Collection, rec.RecordID, []byte(rec.Payload), rec.CachedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put reference record: %w", err)
	}
	return nil
}

// BulkPut upserts every record. Callers wanting atomicity run it inside
// dbx.WithTx.
func (r *SQLiteRepository) BulkPut(ctx context.Context, recs []*models.ReferenceRecord) error {
	for _, rec := range recs {
		if err := r.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) ListByCollection(ctx context.Context, collection string) ([]*models.ReferenceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT collection, record_id, payload, cached_at
		FROM reference_data WHERE collection = ? ORDER BY record_id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference records: %w", err)
	}
	defer rows.Close()

	var result []*models.ReferenceRecord
	for rows.Next() {
		var (
			rec      models.ReferenceRecord
			payload  []byte
			cachedAt int64
		)
		if err := rows.Scan(&rec.Collection, &rec.RecordID, &payload, &cachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference row: %w", err)
		}
		rec.Payload = payload
		rec.CachedAt = time.UnixMilli(cachedAt)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reference rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Collections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT collection FROM reference_data ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection name: %w", err)
		}
		result = append(result, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection names: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteCollection(ctx context.Context, collection string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reference_data WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reference_data`)
	if err != nil {
		return fmt.Errorf("failed to clear reference data: %w", err)
	}
	return nil
}
