package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get implements storage.KeyValueStore.
func (a *Adapter) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := a.db.QueryRowContext(ctx, queryKVGet, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements storage.KeyValueStore.
func (a *Adapter) Set(ctx context.Context, key, value string) error {
	if _, err := a.db.ExecContext(ctx, queryKVSet, key, value); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Delete implements storage.KeyValueStore.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, queryKVDelete, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
