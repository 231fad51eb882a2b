package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdcpos/posoffline/internal/common"
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

func nullableMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// Put upserts a session keyed by (owner_id, tab_id): starting a new session
// in a tab replaces only that tab's previous one.
func (r *SQLiteRepository) Put(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, owner_id, tab_id, created_at, expires_at, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, tab_id) DO UPDATE SET
			id = excluded.id,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			heartbeat_at = excluded.heartbeat_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.TabID,
		s.CreatedAt.UnixMilli(), nullableMilli(s.ExpiresAt), s.HeartbeatAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	var (
		s         models.Session
		createdAt int64
		expiresAt sql.NullInt64
		heartbeat int64
	)
	if err := scan(&s.ID, &s.OwnerID, &s.TabID, &createdAt, &expiresAt, &heartbeat); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt)
	s.HeartbeatAt = time.UnixMilli(heartbeat)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		s.ExpiresAt = &t
	}
	return &s, nil
}

// GetByTab returns the session for the given (owner, tab) pair.
// Returns common.ErrNotFound when no such session exists.
func (r *SQLiteRepository) GetByTab(ctx context.Context, ownerID, tabID string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, tab_id, created_at, expires_at, heartbeat_at
		FROM sessions WHERE owner_id = ? AND tab_id = ?
	`, ownerID, tabID)

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, tab_id, created_at, expires_at, heartbeat_at
		FROM sessions WHERE owner_id = ? ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return result, nil
}

// Heartbeat refreshes the liveness timestamp and, when set, the expiry.
func (r *SQLiteRepository) Heartbeat(ctx context.Context, id string, at time.Time, expiresAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET heartbeat_at = ?, expires_at = ? WHERE id = ?
	`, at.UnixMilli(), nullableMilli(expiresAt), id)
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is in the past and returns the
// number of rows reaped.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < ?
	`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
