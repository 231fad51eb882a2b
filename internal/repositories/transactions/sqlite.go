package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/dbx"
	"github.com/pdcpos/posoffline/internal/models"
)

const selectColumns = `id, idempotency_key, payload, status, attempts, created_at, synced_at, last_error`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, t *models.OfflineTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, idempotency_key, payload, status, attempts, created_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.IdempotencyKey, []byte(t.Payload), string(t.Status), t.Attempts,
		t.CreatedAt.UnixMilli(), t.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func scanTransaction(scan func(dest ...any) error) (*models.OfflineTransaction, error) {
	var (
		t         models.OfflineTransaction
		status    string
		payload   []byte
		createdAt int64
		syncedAt  sql.NullInt64
	)
	if err := scan(&t.ID, &t.IdempotencyKey, &payload, &status, &t.Attempts,
		&createdAt, &syncedAt, &t.LastError); err != nil {
		return nil, err
	}
	t.Payload = payload
	t.Status = models.TxStatus(status)
	t.CreatedAt = time.UnixMilli(createdAt)
	if syncedAt.Valid {
		at := time.UnixMilli(syncedAt.Int64)
		t.SyncedAt = &at
	}
	return &t, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.OfflineTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListPending orders by created_at, with rowid breaking same-millisecond
// ties by insertion sequence.
func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]*models.OfflineTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM transactions
		WHERE status = 'pending'
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.OfflineTransaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) OldestPending(ctx context.Context) (*models.OfflineTransaction, error) {
	list, err := r.ListPending(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, common.ErrNotFound
	}
	return list[0], nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, status models.TxStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// explainUnaffected turns a zero-rows-affected status update into the right
// error kind: missing row vs. a row in a status the transition forbids.
func (r *SQLiteRepository) explainUnaffected(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction status: %w", err)
	}
	return fmt.Errorf("transaction %s in status %s: %w", id, status, common.ErrInvalidState)
}

// MarkSynced advances a pending or syncing row to synced.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET status = 'synced', synced_at = ?
		WHERE id = ? AND status IN ('pending', 'syncing')
	`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction synced: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.explainUnaffected(ctx, id)
	}
	return nil
}

// MarkFailed advances a pending or syncing row to failed, recording the cause.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET status = 'failed', last_error = ?
		WHERE id = ? AND status IN ('pending', 'syncing')
	`, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.explainUnaffected(ctx, id)
	}
	return nil
}

func (r *SQLiteRepository) IncrementAttempt(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET status = 'pending'
		WHERE status = 'failed' AND attempts < ?
	`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// DeleteSyncedBefore removes synced rows older than cutoff (retention pass).
func (r *SQLiteRepository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE status = 'synced' AND synced_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete synced transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
