// Package syncmgr drains the offline queue to the backend. One cycle pushes
// one batch; a long backlog is worked off over consecutive cycles rather
// than in a single oversized request. Cycles run on a timer and immediately
// after connectivity is regained, and never overlap.
package syncmgr

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pdcpos/posoffline/internal/connmon"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/queue"
	"github.com/pdcpos/posoffline/internal/remote"
	"github.com/pdcpos/posoffline/internal/repositories/syncerrors"
	"github.com/pdcpos/posoffline/internal/retryx"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultBatchSize = 100

	// DefaultRetention is how long synced transactions, sync error records
	// and overflow-log entries are kept before cleanup.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultCleanupEvery spaces out retention cleanup so it does not run
	// on every cycle.
	DefaultCleanupEvery = time.Hour
)

// Connectivity is the reachability view the manager consults. Satisfied by
// *connmon.Monitor.
type Connectivity interface {
	Reachable() bool
	Subscribe() <-chan connmon.Event
}

type Config struct {
	Interval     time.Duration
	BatchSize    int
	Retention    time.Duration
	CleanupEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		BatchSize:    DefaultBatchSize,
		Retention:    DefaultRetention,
		CleanupEvery: DefaultCleanupEvery,
	}
}

// Result summarizes one sync cycle.
type Result struct {
	// Skipped is true when the cycle did not run at all: another cycle was
	// in flight or the endpoint was unreachable.
	Skipped bool
	Synced  int
	Failed  int
	// Remaining is the pending depth after the cycle.
	Remaining int
	Err       error
}

type Manager struct {
	q      *queue.Queue
	client remote.Client
	conn   Connectivity
	db     *sql.DB
	exec   *retryx.Executor
	log    logging.Logger
	cfg    Config

	// onStarted and onCompleted are optional UI hooks, set before Start.
	onStarted   func()
	onCompleted func(Result)

	mu          sync.Mutex
	syncing     bool
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastCleanup time.Time
}

func New(q *queue.Queue, client remote.Client, conn Connectivity, db *sql.DB,
	exec *retryx.Executor, log logging.Logger, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = DefaultCleanupEvery
	}
	return &Manager{
		q:      q,
		client: client,
		conn:   conn,
		db:     db,
		exec:   exec,
		log:    log.With("component", "syncmgr"),
		cfg:    cfg,
	}
}

// OnSyncStarted registers a hook invoked when a cycle begins. Must be set
// before Start.
func (m *Manager) OnSyncStarted(fn func()) { m.onStarted = fn }

// OnSyncCompleted registers a hook invoked with every non-skipped cycle's
// result. Must be set before Start.
func (m *Manager) OnSyncCompleted(fn func(Result)) { m.onCompleted = fn }

// Syncing reports whether a cycle is currently in flight.
func (m *Manager) Syncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

// ErrorCount reports how many durable sync error records exist.
func (m *Manager) ErrorCount(ctx context.Context) (int, error) {
	return retryx.DoValue(ctx, m.exec, "syncmgr.error_count",
		func(ctx context.Context) (int, error) {
			return syncerrors.NewSQLiteRepository(m.db).Count(ctx)
		})
}

// Start launches the background loop. A second Start while running is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	events := m.conn.Subscribe()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.State == models.ConnReachable {
				m.log.Info(ctx, "connectivity regained, starting sync cycle")
				m.SyncNow(ctx)
			}
		case <-ticker.C:
			m.SyncNow(ctx)
		}
	}
}

// SyncNow runs one sync cycle. When a cycle is already in flight or the
// endpoint is unreachable the call returns immediately with Skipped set.
func (m *Manager) SyncNow(ctx context.Context) Result {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return Result{Skipped: true}
	}
	m.syncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	if !m.conn.Reachable() {
		return Result{Skipped: true}
	}

	if m.onStarted != nil {
		m.onStarted()
	}

	res := m.cycle(ctx)

	if m.onCompleted != nil {
		m.onCompleted(res)
	}
	return res
}

func (m *Manager) cycle(ctx context.Context) Result {
	var res Result

	// Failed items under the attempt ceiling get another chance each cycle.
	requeued, err := m.q.RequeueFailed(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	if requeued > 0 {
		m.log.Info(ctx, "requeued failed transactions", "count", requeued)
	}

	items, err := m.q.DequeueBatch(ctx, m.cfg.BatchSize)
	if err != nil {
		res.Err = err
		return res
	}

	if len(items) > 0 {
		res = m.pushBatch(ctx, items)
	}

	if res.Err == nil {
		if remaining, err := m.q.PendingCount(ctx); err == nil {
			res.Remaining = remaining
		}
		m.maybeCleanup(ctx)
	}
	return res
}

// pushBatch submits one batch and applies the per-item outcomes. On a
// transport failure the batch is abandoned: no statuses were changed at
// dequeue, so the items simply remain pending for the next cycle.
func (m *Manager) pushBatch(ctx context.Context, items []*models.OfflineTransaction) Result {
	var res Result

	batch := make([]remote.BatchItem, len(items))
	for i, t := range items {
		batch[i] = remote.BatchItem{IdempotencyKey: t.IdempotencyKey, Payload: t.Payload}
	}

	outcomes, err := m.client.PushBatch(ctx, batch)
	if err != nil {
		m.log.Warn(ctx, "batch push failed, abandoning cycle",
			"items", len(items), "error", err)
		res.Err = err
		return res
	}

	byKey := make(map[string]remote.Outcome, len(outcomes))
	for _, o := range outcomes {
		byKey[o.IdempotencyKey] = o
	}

	for _, t := range items {
		if !m.conn.Reachable() {
			// Connectivity dropped mid-batch. Unprocessed items stay
			// pending; the ones already marked keep their final state.
			m.log.Warn(ctx, "connectivity lost mid-batch, abandoning remainder")
			break
		}

		o, ok := byKey[t.IdempotencyKey]
		if !ok {
			m.log.Warn(ctx, "no outcome for batch item, leaving pending",
				"id", t.ID, "key", t.IdempotencyKey)
			continue
		}

		if o.OK {
			if err := m.q.MarkSynced(ctx, t.ID); err != nil {
				res.Err = err
				return res
			}
			res.Synced++
			continue
		}

		if err := m.recordFailure(ctx, t, o); err != nil {
			res.Err = err
			return res
		}
		res.Failed++
	}
	return res
}

// recordFailure persists the durable error record before the outcome is
// discarded, then moves the item to failed.
func (m *Manager) recordFailure(ctx context.Context, t *models.OfflineTransaction, o remote.Outcome) error {
	m.log.Warn(ctx, "transaction rejected by server",
		"id", t.ID, "kind", o.ErrorKind, "message", o.Message)

	err := m.exec.Do(ctx, "syncmgr.record_failure", func(ctx context.Context) error {
		return syncerrors.NewSQLiteRepository(m.db).Insert(ctx, &models.SyncErrorRecord{
			TransactionID: t.ID,
			Kind:          o.ErrorKind,
			Message:       o.Message,
			CreatedAt:     time.Now(),
		})
	})
	if err != nil {
		return err
	}

	if err := m.q.IncrementAttempt(ctx, t.ID); err != nil {
		return err
	}
	return m.q.MarkFailed(ctx, t.ID, o.Message)
}

// maybeCleanup runs retention cleanup at most once per CleanupEvery.
func (m *Manager) maybeCleanup(ctx context.Context) {
	m.mu.Lock()
	due := time.Since(m.lastCleanup) >= m.cfg.CleanupEvery
	if due {
		m.lastCleanup = time.Now()
	}
	m.mu.Unlock()
	if !due {
		return
	}

	cutoff := time.Now().Add(-m.cfg.Retention)

	if n, err := m.q.PruneSynced(ctx, cutoff); err != nil {
		m.log.Error(ctx, "pruning synced transactions", "error", err)
	} else if n > 0 {
		m.log.Info(ctx, "pruned synced transactions", "count", n)
	}

	if n, err := m.q.PruneOverflow(ctx, cutoff); err != nil {
		m.log.Error(ctx, "pruning overflow log", "error", err)
	} else if n > 0 {
		m.log.Info(ctx, "pruned overflow log", "count", n)
	}

	err := m.exec.Do(ctx, "syncmgr.prune_errors", func(ctx context.Context) error {
		_, err := syncerrors.NewSQLiteRepository(m.db).DeleteBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		m.log.Error(ctx, "pruning sync errors", "error", err)
	}
}
