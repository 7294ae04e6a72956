package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
)

// Catalog is the response shape for the canonical field listing.
type Catalog struct {
	Fields   []CanonicalField            `json:"fields"`
	Domains  map[string][]CanonicalField `json:"domains"`
	FieldMap map[string]CanonicalField   `json:"field_map"`
}

type Service struct {
	repo CustomFieldRepository
}

func NewService(repo CustomFieldRepository) *Service {
	return &Service{repo: repo}
}

// Canonical returns the fixed target schema.
func (s *Service) Canonical() Catalog {
	return Catalog{
		Fields:   Fields(),
		Domains:  Domains(),
		FieldMap: FieldMap(),
	}
}

// AddCustomField registers a new custom field. When a default value is given
// it is applied to every patient that does not already carry the key; the
// returned count is the number of patients updated.
func (s *Service) AddCustomField(ctx context.Context, name string, defaultValue *string) (*CustomField, int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, 0, apperr.Validationf("field name is required")
	}
	if IsCanonical(name) {
		return nil, 0, apperr.Validationf("field %q collides with a canonical field", name)
	}

	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		return nil, 0, apperr.Conflictf("field %q is already registered", name)
	}

	f := &CustomField{Name: name, DefaultValue: defaultValue}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, 0, err
	}

	updated := 0
	if defaultValue != nil {
		updated, err = s.repo.ApplyDefault(ctx, name, defaultValue)
		if err != nil {
			return nil, 0, fmt.Errorf("backfill default for %q: %w", name, err)
		}
	}
	return f, updated, nil
}

// RemoveCustomField deletes the registration and clears the key from every
// patient's extra_fields. Removing a field no patient carries is a no-op and
// not an error.
func (s *Service) RemoveCustomField(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperr.Validationf("field name is required")
	}
	if IsCanonical(name) {
		return 0, apperr.Validationf("cannot remove canonical field %q", name)
	}

	cleared, err := s.repo.ClearFromPatients(ctx, name)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return 0, err
	}
	return cleared, nil
}

// ListCustomFields returns all registered custom fields sorted by name.
func (s *Service) ListCustomFields(ctx context.Context) ([]*CustomField, error) {
	fields, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []*CustomField{}
	}
	return fields, nil
}
