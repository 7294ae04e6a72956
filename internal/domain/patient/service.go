package patient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/cohortdesk/cohortdesk/internal/domain/mapping"
	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
	"github.com/cohortdesk/cohortdesk/internal/platform/db"
)

// DatasetDirectory answers whether a dataset exists. Implemented by the
// dataset repository.
type DatasetDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// TxRunner serializes write paths per dataset.
type TxRunner interface {
	RunExclusive(ctx context.Context, datasetID uuid.UUID, fn func(ctx context.Context) error) error
}

type Service struct {
	repo     Repository
	datasets DatasetDirectory
	tx       TxRunner
}

func NewService(repo Repository, datasets DatasetDirectory, tx TxRunner) *Service {
	return &Service{repo: repo, datasets: datasets, tx: tx}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFoundf("patient %s", id)
	}
	return p, nil
}

// Create registers a patient directly, outside any file materialization.
// The patient key defaults to the normalized MRN, or a fresh ID when the
// record has none.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	ok, err := s.datasets.Exists(ctx, p.DatasetID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("dataset %s", p.DatasetID)
	}
	if p.PatientKey == "" {
		if p.MRN != nil && strings.TrimSpace(*p.MRN) != "" {
			p.PatientKey = strings.TrimSpace(*p.MRN)
		} else {
			p.PatientKey = uuid.NewString()
		}
	}
	if existing, err := s.repo.GetByDatasetAndKey(ctx, p.DatasetID, p.PatientKey); err != nil {
		return err
	} else if existing != nil {
		return apperr.Conflictf("patient key %q already exists in dataset", p.PatientKey)
	}
	if p.Raw == nil {
		p.Raw = map[string]interface{}{}
	}
	if p.ExtraFields == nil {
		p.ExtraFields = map[string]interface{}{}
	}
	return s.repo.Create(ctx, p)
}

// UpdateFields applies a partial update. Canonical keys are coerced to their
// declared types; unknown keys merge into extra_fields; a JSON null clears.
func (s *Service) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*Patient, error) {
	if len(updates) == 0 {
		return nil, apperr.Validationf("no fields to update")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyUpdates(p, updates); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// BulkUpdateItem is one patient's partial update in a bulk request.
type BulkUpdateItem struct {
	ID      uuid.UUID              `json:"id"`
	Updates map[string]interface{} `json:"updates"`
}

// BulkUpdate applies partial updates to several patients. The batch is
// all-or-nothing: one bad item aborts the whole request.
func (s *Service) BulkUpdate(ctx context.Context, items []BulkUpdateItem) (int, error) {
	if len(items) == 0 {
		return 0, apperr.Validationf("no updates given")
	}
	updated := 0
	for _, item := range items {
		if _, err := s.UpdateFields(ctx, item.ID, item.Updates); err != nil {
			return updated, fmt.Errorf("patient %s: %w", item.ID, err)
		}
		updated++
	}
	return updated, nil
}

func (s *Service) ListByDataset(ctx context.Context, datasetID uuid.UUID, query, missingField string, limit, offset int) ([]*Patient, int, error) {
	ok, err := s.datasets.Exists(ctx, datasetID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, apperr.NotFoundf("dataset %s", datasetID)
	}
	if missingField != "" && !schema.IsCanonical(missingField) {
		return nil, 0, apperr.Validationf("unknown field %q", missingField)
	}
	patients, total, err := s.repo.Search(ctx, datasetID, query, missingField, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return patients, total, nil
}

func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	patients, total, err := s.repo.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return patients, total, nil
}

// FieldMissingness summarizes one canonical field's coverage.
type FieldMissingness struct {
	MissingCount      int     `json:"missing_count"`
	MissingPercentage float64 `json:"missing_percentage"`
}

// MissingnessReport covers every canonical field across a dataset.
type MissingnessReport struct {
	DatasetID     uuid.UUID                   `json:"dataset_id"`
	TotalPatients int                         `json:"total_patients"`
	Fields        map[string]FieldMissingness `json:"fields"`
}

func (s *Service) Missingness(ctx context.Context, datasetID uuid.UUID) (*MissingnessReport, error) {
	ok, err := s.datasets.Exists(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFoundf("dataset %s", datasetID)
	}

	patients, err := s.repo.ListAllByDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	report := &MissingnessReport{
		DatasetID:     datasetID,
		TotalPatients: len(patients),
		Fields:        make(map[string]FieldMissingness, 15),
	}
	for _, field := range schema.FieldNames() {
		missing := 0
		for _, p := range patients {
			if p.FieldEmpty(field) {
				missing++
			}
		}
		pct := 0.0
		if len(patients) > 0 {
			pct = math.Round(float64(missing)/float64(len(patients))*1000) / 10
		}
		report.Fields[field] = FieldMissingness{MissingCount: missing, MissingPercentage: pct}
	}
	return report, nil
}

// FillResult reports what a fill run changed.
type FillResult struct {
	Mode            string `json:"mode"`
	PatientsUpdated int    `json:"patients_updated"`
	FieldsFilled    int    `json:"fields_filled"`
}

// Fill runs the fill engine over a dataset, or a subset of its patients,
// while holding the dataset's write lock. Populated fields are never
// overwritten in either mode.
func (s *Service) Fill(ctx context.Context, datasetID uuid.UUID, mode string, patientIDs []uuid.UUID) (*FillResult, error) {
	if mode != FillModeStrict && mode != FillModeImpute {
		return nil, apperr.Validationf("unknown fill mode %q", mode)
	}

	var result *FillResult
	err := s.tx.RunExclusive(ctx, datasetID, func(ctx context.Context) error {
		ok, err := s.datasets.Exists(ctx, datasetID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFoundf("dataset %s", datasetID)
		}

		patients, err := s.loadFillScope(ctx, datasetID, patientIDs)
		if err != nil {
			return err
		}

		changed, fieldsFilled := fillPatients(patients, mode)
		for _, p := range changed {
			if err := s.repo.Update(ctx, p); err != nil {
				return err
			}
		}
		result = &FillResult{Mode: mode, PatientsUpdated: len(changed), FieldsFilled: fieldsFilled}
		return nil
	})
	if errors.Is(err, db.ErrLockNotAcquired) {
		return nil, apperr.Conflictf("dataset %s is busy", datasetID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) loadFillScope(ctx context.Context, datasetID uuid.UUID, patientIDs []uuid.UUID) ([]*Patient, error) {
	if len(patientIDs) == 0 {
		return s.repo.ListAllByDataset(ctx, datasetID)
	}
	patients := make([]*Patient, 0, len(patientIDs))
	for _, id := range patientIDs {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil || p.DatasetID != datasetID {
			return nil, apperr.NotFoundf("patient %s in dataset %s", id, datasetID)
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// applyUpdates writes a partial update map onto a patient. Values are passed
// through the same coercion path as file cells so "42", 42 and 42.0 behave
// identically.
func applyUpdates(p *Patient, updates map[string]interface{}) error {
	for key, value := range updates {
		switch key {
		case "id", "dataset_id", "patient_key", "raw", "created_at", "updated_at":
			return apperr.Validationf("field %q cannot be edited", key)
		case "extra_fields":
			merge, ok := value.(map[string]interface{})
			if !ok {
				return apperr.Validationf("extra_fields must be an object")
			}
			if p.ExtraFields == nil {
				p.ExtraFields = map[string]interface{}{}
			}
			for k, v := range merge {
				if v == nil {
					delete(p.ExtraFields, k)
					continue
				}
				p.ExtraFields[k] = v
			}
		default:
			if def, ok := schema.Lookup(key); ok {
				if value == nil {
					p.SetField(key, mapping.Null())
					continue
				}
				p.SetField(key, mapping.Coerce(fmt.Sprintf("%v", value), def.Type))
				continue
			}
			if p.ExtraFields == nil {
				p.ExtraFields = map[string]interface{}{}
			}
			if value == nil {
				delete(p.ExtraFields, key)
				continue
			}
			p.ExtraFields[key] = value
		}
	}
	return nil
}
