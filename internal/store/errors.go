package store

import (
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pdcpos/posoffline/internal/common"
)

// KindOf maps a storage error to one of the sentinel error kinds in package
// common, or returns nil for errors the store does not recognize.
//
// This is the single classification table the retry executor depends on:
//   - Aborted (SQLITE_BUSY/SQLITE_LOCKED/SQLITE_ABORT): another actor's
//     transaction was in flight; retrying is expected to succeed.
//   - QuotaExceeded (SQLITE_FULL): may clear once cleanup runs.
//   - ConstraintViolation, NotFound, InvalidState: retrying can never help.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	// Already-classified errors pass through unchanged.
	for _, kind := range []error{
		common.ErrAborted, common.ErrQuotaExceeded,
		common.ErrConstraintViolated, common.ErrNotFound, common.ErrInvalidState,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) {
		return common.ErrInvalidState
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_ABORT:
			return common.ErrAborted
		case sqlite3.SQLITE_FULL:
			return common.ErrQuotaExceeded
		case sqlite3.SQLITE_CONSTRAINT:
			return common.ErrConstraintViolated
		case sqlite3.SQLITE_MISUSE:
			return common.ErrInvalidState
		}
	}

	return nil
}

// IsTransient reports whether the error is expected to clear on retry.
func IsTransient(err error) bool {
	kind := KindOf(err)
	return kind == common.ErrAborted || kind == common.ErrQuotaExceeded
}

// IsPermanent reports whether retrying the operation can never succeed.
func IsPermanent(err error) bool {
	kind := KindOf(err)
	return kind == common.ErrConstraintViolated ||
		kind == common.ErrNotFound ||
		kind == common.ErrInvalidState
}
