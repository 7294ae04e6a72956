package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients. Implementations must respect any transaction
// bound to the context.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByDatasetAndKey(ctx context.Context, datasetID uuid.UUID, key string) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	ListByDataset(ctx context.Context, datasetID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	ListAllByDataset(ctx context.Context, datasetID uuid.UUID) ([]*Patient, error)
	ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, datasetID uuid.UUID, query, missingField string, limit, offset int) ([]*Patient, int, error)
	CountByDataset(ctx context.Context, datasetID uuid.UUID) (int, error)
}
