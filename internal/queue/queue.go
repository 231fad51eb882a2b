// Package queue is the bounded write-ahead queue for offline-originated
// transactions. Every entry gets an idempotency key at enqueue time, drain
// order is FIFO by creation time, and the capacity bound is enforced with an
// archive-oldest overflow policy: the displaced item moves to the durable
// overflow log inside the same store transaction that accepts the new one.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"database/sql"

	"github.com/google/uuid"

	"github.com/pdcpos/posoffline/internal/dbx"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/repositories/overflow"
	"github.com/pdcpos/posoffline/internal/repositories/transactions"
	"github.com/pdcpos/posoffline/internal/retryx"
)

const (
	// DefaultCapacity bounds the number of pending items.
	DefaultCapacity = 5000

	// DefaultMaxAttempts is the ceiling beyond which failed items are no
	// longer requeued.
	DefaultMaxAttempts = 5
)

type Queue struct {
	db       *sql.DB
	exec     *retryx.Executor
	log      logging.Logger
	capacity int
	maxAtt   int
}

// New returns a queue over the transactions collection. capacity and
// maxAttempts fall back to the defaults when non-positive.
func New(db *sql.DB, exec *retryx.Executor, log logging.Logger, capacity, maxAttempts int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		db:       db,
		exec:     exec,
		log:      log.With("component", "queue"),
		capacity: capacity,
		maxAtt:   maxAttempts,
	}
}

func (q *Queue) txRepo(db dbx.DBTX) transactions.Repository {
	return transactions.NewSQLiteRepository(db)
}

// Enqueue assigns a fresh idempotency key, writes the transaction as pending,
// and returns it. When the queue is at capacity the oldest pending item is
// archived to the overflow log in the same store transaction, so the write
// is accepted and nothing is silently dropped.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (*models.OfflineTransaction, error) {
	t := &models.OfflineTransaction{
		ID:             uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		Status:         models.TxPending,
		CreatedAt:      time.Now(),
	}

	err := q.exec.Do(ctx, "queue.enqueue", func(ctx context.Context) error {
		return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := q.txRepo(tx)

			// Count and archive inside the enqueue transaction: concurrent
			// enqueues cannot overshoot the capacity bound.
			pending, err := repo.CountByStatus(ctx, models.TxPending)
			if err != nil {
				return err
			}
			if pending >= q.capacity {
				if err := q.archiveOldest(ctx, tx, repo); err != nil {
					return fmt.Errorf("archive-oldest: %w", err)
				}
			}

			return repo.Insert(ctx, t)
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (q *Queue) archiveOldest(ctx context.Context, tx dbx.DBTX, repo transactions.Repository) error {
	oldest, err := repo.OldestPending(ctx)
	if err != nil {
		return err
	}

	archived := &models.ArchivedTransaction{
		ID:             oldest.ID,
		IdempotencyKey: oldest.IdempotencyKey,
		Payload:        oldest.Payload,
		CreatedAt:      oldest.CreatedAt,
		ArchivedAt:     time.Now(),
	}
	if err := overflow.NewSQLiteRepository(tx).Insert(ctx, archived); err != nil {
		return err
	}
	if err := repo.DeleteByID(ctx, oldest.ID); err != nil {
		return err
	}

	q.log.Warn(ctx, "queue at capacity, archived oldest pending item",
		"id", oldest.ID, "capacity", q.capacity)
	return nil
}

// DequeueBatch returns up to max pending transactions in FIFO order. Statuses
// are left untouched: an abandoned batch needs no compensation, the items
// simply stay pending for the next cycle.
func (q *Queue) DequeueBatch(ctx context.Context, max int) ([]*models.OfflineTransaction, error) {
	return retryx.DoValue(ctx, q.exec, "queue.dequeue_batch",
		func(ctx context.Context) ([]*models.OfflineTransaction, error) {
			return q.txRepo(q.db).ListPending(ctx, max)
		})
}

func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	return q.exec.Do(ctx, "queue.mark_synced", func(ctx context.Context) error {
		return q.txRepo(q.db).MarkSynced(ctx, id, time.Now())
	})
}

func (q *Queue) MarkFailed(ctx context.Context, id string, cause string) error {
	return q.exec.Do(ctx, "queue.mark_failed", func(ctx context.Context) error {
		return q.txRepo(q.db).MarkFailed(ctx, id, cause)
	})
}

// IncrementAttempt is called by the sync manager only; enqueue never touches
// the attempt counter.
func (q *Queue) IncrementAttempt(ctx context.Context, id string) error {
	return q.exec.Do(ctx, "queue.increment_attempt", func(ctx context.Context) error {
		return q.txRepo(q.db).IncrementAttempt(ctx, id)
	})
}

// RequeueFailed flips retry-eligible failed items back to pending and
// returns how many were requeued.
func (q *Queue) RequeueFailed(ctx context.Context) (int64, error) {
	return retryx.DoValue(ctx, q.exec, "queue.requeue_failed",
		func(ctx context.Context) (int64, error) {
			return q.txRepo(q.db).RequeueFailed(ctx, q.maxAtt)
		})
}

// PendingCount reports the queue depth for dashboards.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return retryx.DoValue(ctx, q.exec, "queue.pending_count",
		func(ctx context.Context) (int, error) {
			return q.txRepo(q.db).CountByStatus(ctx, models.TxPending)
		})
}

// OverflowCount reports how many items the archive-oldest policy displaced.
func (q *Queue) OverflowCount(ctx context.Context) (int, error) {
	return retryx.DoValue(ctx, q.exec, "queue.overflow_count",
		func(ctx context.Context) (int, error) {
			return overflow.NewSQLiteRepository(q.db).Count(ctx)
		})
}

// PruneSynced deletes synced transactions older than cutoff.
func (q *Queue) PruneSynced(ctx context.Context, cutoff time.Time) (int64, error) {
	return retryx.DoValue(ctx, q.exec, "queue.prune_synced",
		func(ctx context.Context) (int64, error) {
			return q.txRepo(q.db).DeleteSyncedBefore(ctx, cutoff)
		})
}

// PruneOverflow deletes overflow-log entries archived before cutoff.
func (q *Queue) PruneOverflow(ctx context.Context, cutoff time.Time) (int64, error) {
	return retryx.DoValue(ctx, q.exec, "queue.prune_overflow",
		func(ctx context.Context) (int64, error) {
			return overflow.NewSQLiteRepository(q.db).DeleteBefore(ctx, cutoff)
		})
}
