package overflow

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

func (r *SQLiteRepository) Insert(ctx context.Context, t *models.ArchivedTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO overflow_log (id, idempotency_key, payload, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.IdempotencyKey, []byte(t.Payload), t.CreatedAt.UnixMilli(), t.ArchivedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert overflow record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.ArchivedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, idempotency_key, payload, created_at, archived_at
		FROM overflow_log ORDER BY archived_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list overflow records: %w", err)
	}
	defer rows.Close()

	var result []*models.ArchivedTransaction
	for rows.Next() {
		var (
			t                    models.ArchivedTransaction
			payload              []byte
			createdAt, archivedAt int64
		)
		if err := rows.Scan(&t.ID, &t.IdempotencyKey, &payload, &createdAt, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan overflow row: %w", err)
		}
		t.Payload = payload
		t.CreatedAt = time.UnixMilli(createdAt)
		t.ArchivedAt = time.UnixMilli(archivedAt)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overflow rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM overflow_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count overflow records: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM overflow_log WHERE archived_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete overflow records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
