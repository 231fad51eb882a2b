package syncmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/connmon"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/queue"
	"github.com/pdcpos/posoffline/internal/remote"
	"github.com/pdcpos/posoffline/internal/repositories/syncerrors"
	"github.com/pdcpos/posoffline/internal/repositories/transactions"
	"github.com/pdcpos/posoffline/internal/retryx"
	"github.com/pdcpos/posoffline/internal/store"
)

type fakeConn struct {
	mu        sync.Mutex
	reachable bool
	events    chan connmon.Event
}

func newFakeConn(reachable bool) *fakeConn {
	return &fakeConn{reachable: reachable, events: make(chan connmon.Event, 8)}
}

func (f *fakeConn) Reachable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeConn) Subscribe() <-chan connmon.Event { return f.events }

func (f *fakeConn) set(reachable bool) {
	f.mu.Lock()
	f.reachable = reachable
	f.mu.Unlock()
}

// fakeRemote deduplicates by idempotency key like the real backend, rejects
// keys listed in reject, and can be switched into a transport-failure mode.
type fakeRemote struct {
	mu     sync.Mutex
	seen   map[string]remote.Outcome
	reject map[string]string
	down   bool

	// onPush runs before each batch is handled, outside the lock.
	onPush func(items []remote.BatchItem)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{seen: map[string]remote.Outcome{}, reject: map[string]string{}}
}

func (f *fakeRemote) Login(context.Context, string, []byte) (*remote.LoginResult, error) {
	return &remote.LoginResult{UserID: "u1"}, nil
}

func (f *fakeRemote) FetchReference(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) PushBatch(_ context.Context, items []remote.BatchItem) ([]remote.Outcome, error) {
	if f.onPush != nil {
		f.onPush(items)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, common.ErrUnavailable
	}

	var out []remote.Outcome
	for _, it := range items {
		if prev, ok := f.seen[it.IdempotencyKey]; ok {
			out = append(out, prev)
			continue
		}
		o := remote.Outcome{IdempotencyKey: it.IdempotencyKey, OK: true}
		if msg, bad := f.reject[it.IdempotencyKey]; bad {
			o = remote.Outcome{IdempotencyKey: it.IdempotencyKey, ErrorKind: "validation", Message: msg}
		}
		f.seen[it.IdempotencyKey] = o
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRemote) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type fixture struct {
	mgr  *Manager
	q    *queue.Queue
	db   *sql.DB
	rem  *fakeRemote
	conn *fakeConn
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	exec := retryx.NewExecutor(log)
	q := queue.New(db, exec, log, 0, 0)
	rem := newFakeRemote()
	conn := newFakeConn(true)

	return &fixture{
		mgr:  New(q, rem, conn, db, exec, log, cfg),
		q:    q,
		db:   db,
		rem:  rem,
		conn: conn,
	}
}

func enqueueN(t *testing.T, q *queue.Queue, n int) []*models.OfflineTransaction {
	t.Helper()
	var out []*models.OfflineTransaction
	for i := 0; i < n; i++ {
		tx, err := q.Enqueue(context.Background(), []byte(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		out = append(out, tx)
	}
	return out
}

func TestSyncNow_DrainsBacklogOverCycles(t *testing.T) {
	f := setup(t, Config{BatchSize: 10})
	ctx := context.Background()

	enqueueN(t, f.q, 12)

	res := f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 10, res.Synced)
	assert.Equal(t, 2, res.Remaining)

	res = f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Synced)
	assert.Zero(t, res.Remaining)

	assert.Equal(t, 12, f.rem.processedCount())
}

func TestSyncNow_SkipsWhenUnreachable(t *testing.T) {
	f := setup(t, Config{})
	f.conn.set(false)

	enqueueN(t, f.q, 3)

	res := f.mgr.SyncNow(context.Background())
	assert.True(t, res.Skipped)

	pending, err := f.q.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestSyncNow_TransportFailureLeavesItemsPending(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()

	enqueueN(t, f.q, 4)
	f.rem.down = true

	res := f.mgr.SyncNow(ctx)
	assert.ErrorIs(t, res.Err, common.ErrUnavailable)

	pending, err := f.q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, pending, "abandoned batch needs no compensation")

	// Recovered transport drains everything, each item exactly once.
	f.rem.mu.Lock()
	f.rem.down = false
	f.rem.mu.Unlock()

	res = f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Synced)
	assert.Equal(t, 4, f.rem.processedCount())
}

func TestSyncNow_ConnectivityLostMidBatch(t *testing.T) {
	f := setup(t, Config{BatchSize: 10})
	ctx := context.Background()

	enqueueN(t, f.q, 6)

	// The link drops while the outcomes are being applied: the push itself
	// succeeds, then reachability flips before any item is marked.
	f.rem.onPush = func([]remote.BatchItem) { f.conn.set(false) }

	res := f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Zero(t, res.Synced)

	pending, err := f.q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, pending)

	// Next cycle, back online: the server already saw the keys and answers
	// from its dedup table, so nothing is applied twice.
	f.rem.onPush = nil
	f.conn.set(true)

	res = f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 6, res.Synced)
	assert.Equal(t, 6, f.rem.processedCount())
}

func TestSyncNow_RejectedItemGetsDurableErrorRecord(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()

	txs := enqueueN(t, f.q, 3)
	bad := txs[1]
	f.rem.reject[bad.IdempotencyKey] = "unknown product"

	res := f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 1, res.Failed)

	recs, err := syncerrors.NewSQLiteRepository(f.db).ListByTransaction(ctx, bad.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "validation", recs[0].Kind)
	assert.Equal(t, "unknown product", recs[0].Message)

	got, err := transactions.NewSQLiteRepository(f.db).GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "unknown product", got.LastError)

	n, err := f.mgr.ErrorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncNow_RequeuesFailedBeforePushing(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()

	txs := enqueueN(t, f.q, 1)
	f.rem.reject[txs[0].IdempotencyKey] = "out of stock"

	res := f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Failed)

	// The rejection is resolved server-side; next cycle requeues and syncs.
	f.rem.mu.Lock()
	delete(f.rem.reject, txs[0].IdempotencyKey)
	delete(f.rem.seen, txs[0].IdempotencyKey)
	f.rem.mu.Unlock()

	res = f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Synced)

	got, err := transactions.NewSQLiteRepository(f.db).GetByID(ctx, txs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxSynced, got.Status)
}

func TestSyncNow_ConcurrentTriggerIsNoOp(t *testing.T) {
	f := setup(t, Config{})
	ctx := context.Background()

	enqueueN(t, f.q, 2)

	started := make(chan struct{})
	release := make(chan struct{})
	f.rem.onPush = func([]remote.BatchItem) {
		close(started)
		<-release
	}

	done := make(chan Result, 1)
	go func() { done <- f.mgr.SyncNow(ctx) }()

	<-started
	assert.True(t, f.mgr.Syncing())
	second := f.mgr.SyncNow(ctx)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Synced)
	assert.False(t, f.mgr.Syncing())
}

func TestCallbacks(t *testing.T) {
	f := setup(t, Config{})

	var startedAt, completedAt int
	var got Result
	f.mgr.OnSyncStarted(func() { startedAt++ })
	f.mgr.OnSyncCompleted(func(r Result) { completedAt++; got = r })

	enqueueN(t, f.q, 1)
	res := f.mgr.SyncNow(context.Background())
	require.NoError(t, res.Err)

	assert.Equal(t, 1, startedAt)
	assert.Equal(t, 1, completedAt)
	assert.Equal(t, res, got)

	// A skipped cycle fires neither hook.
	f.conn.set(false)
	f.mgr.SyncNow(context.Background())
	assert.Equal(t, 1, startedAt)
	assert.Equal(t, 1, completedAt)
}

func TestStartStop_Idempotent(t *testing.T) {
	f := setup(t, Config{Interval: time.Hour})
	ctx := context.Background()

	f.mgr.Start(ctx)
	f.mgr.Start(ctx)
	f.mgr.Stop()
	f.mgr.Stop()

	f.mgr.Start(ctx)
	f.mgr.Stop()
}

func TestStart_SyncsOnReachableEvent(t *testing.T) {
	f := setup(t, Config{Interval: time.Hour})
	ctx := context.Background()

	f.conn.set(false)
	enqueueN(t, f.q, 2)

	f.mgr.Start(ctx)
	defer f.mgr.Stop()

	f.conn.set(true)
	f.conn.events <- connmon.Event{State: models.ConnReachable, At: time.Now()}

	require.Eventually(t, func() bool {
		return f.rem.processedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMaybeCleanup_PrunesOldRecords(t *testing.T) {
	f := setup(t, Config{Retention: time.Hour, CleanupEvery: time.Nanosecond})
	ctx := context.Background()

	// Plant an old synced transaction and an old error record directly.
	old := time.Now().Add(-48 * time.Hour)
	repo := transactions.NewSQLiteRepository(f.db)
	require.NoError(t, repo.Insert(ctx, &models.OfflineTransaction{
		ID: "old-tx", IdempotencyKey: "old-key", Payload: []byte(`{}`),
		Status: models.TxPending, CreatedAt: old,
	}))
	require.NoError(t, repo.MarkSynced(ctx, "old-tx", old))
	require.NoError(t, syncerrors.NewSQLiteRepository(f.db).Insert(ctx, &models.SyncErrorRecord{
		TransactionID: "old-tx", Kind: "validation", Message: "stale", CreatedAt: old,
	}))

	res := f.mgr.SyncNow(ctx)
	require.NoError(t, res.Err)

	_, err := repo.GetByID(ctx, "old-tx")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	n, err := f.mgr.ErrorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
