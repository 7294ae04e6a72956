package dataset

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists datasets. Implementations must respect any transaction
// bound to the context.
type Repository interface {
	Create(ctx context.Context, d *Dataset) error
	Update(ctx context.Context, d *Dataset) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)
	List(ctx context.Context, limit, offset int) ([]*Dataset, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
