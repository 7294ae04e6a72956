package schema

import "context"

// CustomFieldRepository persists the custom field registry and keeps patient
// extra_fields in sync when fields are added with defaults or removed.
type CustomFieldRepository interface {
	Create(ctx context.Context, f *CustomField) error
	GetByName(ctx context.Context, name string) (*CustomField, error)
	List(ctx context.Context) ([]*CustomField, error)
	Delete(ctx context.Context, name string) error

	// ApplyDefault sets the field on every patient whose extra_fields does
	// not already carry the key, returning the number of patients updated.
	ApplyDefault(ctx context.Context, name string, value *string) (int, error)

	// ClearFromPatients removes the key from every patient's extra_fields,
	// returning the number of patients updated.
	ClearFromPatients(ctx context.Context, name string) (int, error)
}
