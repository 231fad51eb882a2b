package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/dbx"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/repositories/metadata"
	"github.com/pdcpos/posoffline/internal/repositories/refdata"
	"github.com/pdcpos/posoffline/internal/retryx"
)

const (
	manifestKey = "refdata_manifest"

	// manifestSchemaVersion is bumped whenever the stored snapshot layout
	// changes. A newer on-disk version than this binary understands makes
	// the snapshot unusable, never a crash.
	manifestSchemaVersion = 1
)

// manifest describes the persisted reference-data snapshot.
type manifest struct {
	SchemaVersion int            `json:"schema_version"`
	SavedAt       time.Time      `json:"saved_at"`
	Collections   map[string]int `json:"collections"`
}

// RefCache holds the working copy of reference data: an in-memory view
// backed by the last-known-good snapshot in the store. A failed restore
// degrades to an empty usable cache; it never blocks startup.
type RefCache struct {
	db   *sql.DB
	exec *retryx.Executor
	log  logging.Logger

	mu       sync.RWMutex
	data     map[string][]*models.ReferenceRecord
	restored bool
	savedAt  time.Time
}

func NewRefCache(db *sql.DB, exec *retryx.Executor, log logging.Logger) *RefCache {
	return &RefCache{
		db:   db,
		exec: exec,
		log:  log.With("component", "refcache"),
		data: make(map[string][]*models.ReferenceRecord),
	}
}

// Restore loads the persisted snapshot into memory. A missing manifest means
// a fresh install and restores nothing. A corrupt manifest or one written by
// a newer schema returns ErrSnapshotUnusable and leaves the cache empty;
// callers are expected to continue and refresh from the server when online.
func (c *RefCache) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored = true
	c.data = make(map[string][]*models.ReferenceRecord)

	raw, err := retryx.DoValue(ctx, c.exec, "refcache.manifest",
		func(ctx context.Context) ([]byte, error) {
			return metadata.NewSQLiteRepository(c.db).Get(ctx, manifestKey)
		})
	if err != nil {
		return err
	}
	if raw == nil {
		c.log.Info(ctx, "no reference snapshot, starting empty")
		return nil
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		c.log.Warn(ctx, "corrupt snapshot manifest, starting empty", "error", err)
		return fmt.Errorf("%w: %s", common.ErrSnapshotUnusable, err)
	}
	if m.SchemaVersion > manifestSchemaVersion {
		c.log.Warn(ctx, "snapshot written by newer schema, starting empty",
			"found", m.SchemaVersion, "supported", manifestSchemaVersion)
		return fmt.Errorf("%w: schema version %d", common.ErrSnapshotUnusable, m.SchemaVersion)
	}

	repo := refdata.NewSQLiteRepository(c.db)
	for name := range m.Collections {
		recs, err := retryx.DoValue(ctx, c.exec, "refcache.load",
			func(ctx context.Context) ([]*models.ReferenceRecord, error) {
				return repo.ListByCollection(ctx, name)
			})
		if err != nil {
			return err
		}
		c.data[name] = recs
	}
	c.savedAt = m.SavedAt

	c.log.Info(ctx, "reference snapshot restored",
		"collections", len(c.data), "saved_at", m.SavedAt)
	return nil
}

// Update replaces one collection with records normalized from raw and
// persists the new snapshot. The collection swap and the manifest write
// happen in one store transaction so a crash never leaves them disagreeing.
func (c *RefCache) Update(ctx context.Context, collection string, raw json.RawMessage) (int, error) {
	normalized := Normalize(raw)
	now := time.Now()

	recs := make([]*models.ReferenceRecord, len(normalized))
	for i, n := range normalized {
		recs[i] = &models.ReferenceRecord{
			Collection: collection,
			RecordID:   n.ID,
			Payload:    n.Payload,
			CachedAt:   now,
		}
	}

	err := c.exec.Do(ctx, "refcache.update", func(ctx context.Context) error {
		return c.persist(ctx, collection, recs, now)
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.data[collection] = recs
	c.savedAt = now
	c.restored = true
	c.mu.Unlock()

	c.log.Info(ctx, "reference collection updated",
		"collection", collection, "records", len(recs))
	return len(recs), nil
}

func (c *RefCache) persist(ctx context.Context, collection string, recs []*models.ReferenceRecord, now time.Time) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ref := refdata.NewSQLiteRepository(tx)
		if err := ref.DeleteCollection(ctx, collection); err != nil {
			return err
		}
		if err := ref.BulkPut(ctx, recs); err != nil {
			return err
		}

		counts := make(map[string]int)
		names, err := ref.Collections(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			existing, err := ref.ListByCollection(ctx, name)
			if err != nil {
				return err
			}
			counts[name] = len(existing)
		}

		body, err := json.Marshal(manifest{
			SchemaVersion: manifestSchemaVersion,
			SavedAt:       now,
			Collections:   counts,
		})
		if err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Set(ctx, manifestKey, body)
	})
}

// Records returns the cached collection. An unrestored cache is restored
// lazily; restore failures degrade to empty rather than erroring reads.
func (c *RefCache) Records(ctx context.Context, collection string) []*models.ReferenceRecord {
	c.mu.RLock()
	restored := c.restored
	c.mu.RUnlock()
	if !restored {
		if err := c.Restore(ctx); err != nil {
			c.log.Warn(ctx, "lazy snapshot restore failed", "error", err)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[collection]
}

// Available reports whether any reference data is loaded.
func (c *RefCache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data) > 0
}

// SavedAt returns when the current snapshot was persisted, zero when none.
func (c *RefCache) SavedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.savedAt
}

// EnsureAvailable is the data-availability gate, checked at offline startup
// and after reconnects: it fails with ErrLocalDataNotAvailable when no
// snapshot exists to work from. An empty cache always re-reads the store
// here; another tab sharing the database file may have persisted a snapshot
// since this cache last looked.
func (c *RefCache) EnsureAvailable(ctx context.Context) error {
	if !c.Available() {
		if err := c.Restore(ctx); err != nil {
			c.log.Warn(ctx, "snapshot restore failed", "error", err)
		}
	}
	if !c.Available() {
		return fmt.Errorf("%w: no reference snapshot", common.ErrLocalDataNotAvailable)
	}
	return nil
}
