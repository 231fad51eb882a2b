package syncerrors

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

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.SyncErrorRecord) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_errors (transaction_id, kind, message, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.TransactionID, rec.Kind, rec.Message, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert sync error: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *SQLiteRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.SyncErrorRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, kind, message, created_at
		FROM sync_errors WHERE transaction_id = ? ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync errors: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncErrorRecord
	for rows.Next() {
		var (
			rec       models.SyncErrorRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Kind, &rec.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync error row: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync error rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_errors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync errors: %w", err)
	}
	return n, nil
}

// DeleteBefore prunes records older than cutoff (retention pass).
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_errors WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sync errors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
