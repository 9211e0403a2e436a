package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/lib/pq"
)

// LockKey acquires a transaction-scoped advisory lock on key, waiting up
// to timeout. The lock is released automatically on commit or rollback.
// Must be called inside a transaction.
func (c *Client) LockKey(ctx context.Context, key string, timeout time.Duration) error {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return ierr.NewError("LockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	if timeout <= 0 {
		ok, err := c.TryLockKey(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return ierr.NewErrorf("lock already held for key %s", key).
				Mark(ierr.ErrAlreadyExists)
		}
		return nil
	}

	// SET LOCAL resets on commit/rollback. Postgres rejects bind
	// parameters in utility statements, so the value is interpolated.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set lock timeout").
			Mark(ierr.ErrDatabase)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		if isLockTimeoutError(err) {
			return ierr.WithError(err).
				WithHintf("Failed to acquire lock within %v", timeout).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to acquire lock").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// TryLockKey attempts the advisory lock without waiting. Returns ok=false
// when the lock is already held elsewhere.
func (c *Client) TryLockKey(ctx context.Context, key string) (bool, error) {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return false, ierr.NewError("TryLockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	var ok bool
	if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock(hashtext($1))", key).Scan(&ok); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to try advisory lock").
			Mark(ierr.ErrDatabase)
	}
	return ok, nil
}

// 55P03 is lock_not_available, raised when lock_timeout expires.
func isLockTimeoutError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "55P03"
	}
	return false
}
