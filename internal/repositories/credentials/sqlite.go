package credentials

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

// Put upserts a credential by user id. Overwrites on password change.
func (r *SQLiteRepository) Put(ctx context.Context, c *models.Credential) error {
	query := `
		INSERT INTO credentials (user_id, login, secret_hash, algorithm, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			login = excluded.login,
			secret_hash = excluded.secret_hash,
			algorithm = excluded.algorithm,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.UserID, c.Login, c.SecretHash, c.Algorithm, c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put credential: %w", err)
	}
	return nil
}

// GetByLogin returns the cached credential for login, or common.ErrNotFound.
func (r *SQLiteRepository) GetByLogin(ctx context.Context, login string) (*models.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, login, secret_hash, algorithm, updated_at
		FROM credentials WHERE login = ?
	`, login)

	var (
		c         models.Credential
		updatedAt int64
	)
	err := row.Scan(&c.UserID, &c.Login, &c.SecretHash, &c.Algorithm, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials`)
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
