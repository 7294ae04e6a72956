package db

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned when another write-path operation already
// holds the per-dataset lock.
var ErrLockNotAcquired = errors.New("dataset lock not acquired")

// lockKey folds a dataset UUID into the bigint keyspace of Postgres advisory
// locks.
func lockKey(datasetID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(datasetID[:])
	return int64(h.Sum64())
}

// AcquireDatasetLock takes a transaction-scoped advisory lock for the given
// dataset. Write-path operations (materialize, update-from-file,
// promote-to-overflow, fill) call this at the start of their transaction so
// at most one of them runs per dataset at a time. The lock is released
// automatically when the transaction ends.
//
// Returns ErrLockNotAcquired instead of blocking when the lock is held.
func AcquireDatasetLock(ctx context.Context, datasetID uuid.UUID) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("acquire dataset lock: no transaction bound to context")
	}

	var acquired bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, lockKey(datasetID)).Scan(&acquired); err != nil {
		return fmt.Errorf("acquire dataset lock: %w", err)
	}
	if !acquired {
		return ErrLockNotAcquired
	}
	return nil
}
