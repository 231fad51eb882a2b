package overflow

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/store"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func archived(at time.Time) *models.ArchivedTransaction {
	return &models.ArchivedTransaction{
		ID:             uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		Payload:        []byte(`{"order":"x"}`),
		CreatedAt:      at.Add(-time.Hour),
		ArchivedAt:     at,
	}
}

func TestInsertListCount(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	first := archived(now.Add(-time.Minute))
	second := archived(now)
	require.NoError(t, r.Insert(ctx, second))
	require.NoError(t, r.Insert(ctx, first))

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID, "listed in archive order")
	assert.Equal(t, second.ID, got[1].ID)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteBefore(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Insert(ctx, archived(now.Add(-40*24*time.Hour))))
	require.NoError(t, r.Insert(ctx, archived(now)))

	n, err := r.DeleteBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
