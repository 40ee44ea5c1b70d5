package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TryAcquire implements storage.LockService. The lock row carries an
// expiry so a crashed holder cannot wedge the job forever; an expired lock
// is taken over in the same statement.
func (a *Adapter) TryAcquire(ctx context.Context, name string) (bool, error) {
	interval := fmt.Sprintf("%d seconds", int(a.lockTTL.Seconds()))
	var got string
	err := a.db.QueryRowContext(ctx, queryLockAcquire, name, interval).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		// Held by someone else and not yet expired.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return true, nil
}

// Release implements storage.LockService.
func (a *Adapter) Release(ctx context.Context, name string) error {
	if _, err := a.db.ExecContext(ctx, queryLockRelease, name); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
