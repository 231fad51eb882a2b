// Package retryx is the resilient operation executor: every store call made
// by upper layers goes through Executor.Do, which classifies failures and
// retries transient ones on a fixed, deterministic backoff schedule.
//
// The classification table lives in the store package (store.IsTransient);
// misclassifying a permanent error as transient would loop forever, and the
// reverse would lose writes, so both sides stay in one place.
package retryx

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/store"
)

// Schedule holds the waits between attempts. With the immediate first try
// this allows 6 attempts in total; a transient failure on the last one is
// surfaced to the caller, never swallowed.
var Schedule = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// Executor wraps store operations with classified retry. It carries no state
// besides its logger; one instance is shared by every component.
type Executor struct {
	log logging.Logger
}

func NewExecutor(log logging.Logger) *Executor {
	return &Executor{log: log.With("component", "retryx")}
}

// Do runs op, retrying transient storage failures (aborts, quota pressure)
// on the fixed schedule. Permanent failures return after a single attempt.
// The label only feeds logs and error messages.
func (e *Executor) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= len(Schedule) {
			return 0, true
		}
		d := Schedule[attempt]
		attempt++
		return d, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if store.IsTransient(err) {
			e.log.Warn(ctx, "transient storage failure, retrying",
				"op", label, "attempt", attempt+1, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if store.IsTransient(err) {
		return fmt.Errorf("%s: retries exhausted: %w", label, err)
	}
	return fmt.Errorf("%s: %w", label, err)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		var err error
		result, err = op(ctx)
		return err
	})
	return result, err
}
