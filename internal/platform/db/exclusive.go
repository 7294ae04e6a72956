package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Exclusive runs a function inside a transaction that holds the per-dataset
// advisory lock, serializing write paths that touch the same dataset.
type Exclusive struct {
	pool *pgxpool.Pool
}

func NewExclusive(pool *pgxpool.Pool) *Exclusive {
	return &Exclusive{pool: pool}
}

// RunExclusive begins a transaction, acquires the dataset lock and runs fn
// with the transaction bound to the context. Returns ErrLockNotAcquired when
// another write path holds the dataset.
func (e *Exclusive) RunExclusive(ctx context.Context, datasetID uuid.UUID, fn func(ctx context.Context) error) error {
	return InTx(ctx, e.pool, func(ctx context.Context) error {
		if err := AcquireDatasetLock(ctx, datasetID); err != nil {
			return err
		}
		return fn(ctx)
	})
}
