package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/repositories/metadata"
	"github.com/pdcpos/posoffline/internal/retryx"
	"github.com/pdcpos/posoffline/internal/store"
)

func setupCache(t *testing.T) (*RefCache, *sql.DB) {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	return NewRefCache(db, retryx.NewExecutor(log), log), db
}

func TestRefCache_FreshStoreIsEmptyButUsable(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Restore(ctx))
	assert.False(t, c.Available())
	assert.Empty(t, c.Records(ctx, "products"))
	assert.ErrorIs(t, c.EnsureAvailable(ctx), common.ErrLocalDataNotAvailable)
}

func TestRefCache_UpdateThenRestoreRoundTrip(t *testing.T) {
	c, db := setupCache(t)
	ctx := context.Background()

	n, err := c.Update(ctx, "products", json.RawMessage(`{"records":[{"id":"p1"},{"id":"p2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Update(ctx, "config", json.RawMessage(`{"id":"cfg","currency":"EUR"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second cache over the same store sees everything after restore,
	// like a process restart would.
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	fresh := NewRefCache(db, retryx.NewExecutor(log), log)
	require.NoError(t, fresh.Restore(ctx))

	assert.True(t, fresh.Available())
	assert.Len(t, fresh.Records(ctx, "products"), 2)
	assert.Len(t, fresh.Records(ctx, "config"), 1)
	assert.False(t, fresh.SavedAt().IsZero())
	assert.NoError(t, fresh.EnsureAvailable(ctx))
}

func TestRefCache_UpdateReplacesCollection(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "products", json.RawMessage(`[{"id":"p1"},{"id":"p2"},{"id":"p3"}]`))
	require.NoError(t, err)

	n, err := c.Update(ctx, "products", json.RawMessage(`[{"id":"p9"}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs := c.Records(ctx, "products")
	require.Len(t, recs, 1)
	assert.Equal(t, "p9", recs[0].RecordID)
}

func TestRefCache_CorruptManifestDegradesToEmpty(t *testing.T) {
	c, db := setupCache(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "products", json.RawMessage(`[{"id":"p1"}]`))
	require.NoError(t, err)

	require.NoError(t, metadata.NewSQLiteRepository(db).Set(ctx, manifestKey, []byte(`{broken`)))

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	fresh := NewRefCache(db, retryx.NewExecutor(log), log)
	err = fresh.Restore(ctx)
	assert.ErrorIs(t, err, common.ErrSnapshotUnusable)
	assert.False(t, fresh.Available())
	assert.Empty(t, fresh.Records(ctx, "products"))
}

func TestRefCache_NewerSchemaVersionIsUnusable(t *testing.T) {
	c, db := setupCache(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "products", json.RawMessage(`[{"id":"p1"}]`))
	require.NoError(t, err)

	body, err := json.Marshal(manifest{SchemaVersion: manifestSchemaVersion + 1})
	require.NoError(t, err)
	require.NoError(t, metadata.NewSQLiteRepository(db).Set(ctx, manifestKey, body))

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	fresh := NewRefCache(db, retryx.NewExecutor(log), log)
	assert.ErrorIs(t, fresh.Restore(ctx), common.ErrSnapshotUnusable)
	assert.False(t, fresh.Available())
}

func TestRefCache_SeesSnapshotWrittenByAnotherTab(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))

	// Tab A starts against a fresh store: nothing to restore yet.
	dbA, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbA.Close() })
	tabA := NewRefCache(dbA, retryx.NewExecutor(log), log)
	require.NoError(t, tabA.Restore(ctx))
	assert.False(t, tabA.Available())

	// Tab B, a separate connection to the same file, persists a snapshot.
	dbB, err := store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbB.Close() })
	tabB := NewRefCache(dbB, retryx.NewExecutor(log), log)
	_, err = tabB.Update(ctx, "products", json.RawMessage(`[{"id":"p1"},{"id":"p2"}]`))
	require.NoError(t, err)

	// Tab A's gate must pick up tab B's snapshot, not trust its earlier
	// empty restore.
	require.NoError(t, tabA.EnsureAvailable(ctx))
	assert.True(t, tabA.Available())
	assert.Len(t, tabA.Records(ctx, "products"), 2)
}

func TestRefCache_LazyRestoreOnFirstRead(t *testing.T) {
	c, db := setupCache(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "products", json.RawMessage(`[{"id":"p1"}]`))
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	fresh := NewRefCache(db, retryx.NewExecutor(log), log)

	// No explicit Restore; the first read loads the snapshot.
	recs := fresh.Records(ctx, "products")
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0].RecordID)
}
