package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cohortdesk/cohortdesk/internal/domain/mapping"
	"github.com/cohortdesk/cohortdesk/internal/domain/patient"
	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
	"github.com/cohortdesk/cohortdesk/internal/platform/db"
	"github.com/cohortdesk/cohortdesk/internal/platform/filestore"
	"github.com/cohortdesk/cohortdesk/internal/platform/tabular"
)

// TxRunner serializes write paths per dataset.
type TxRunner interface {
	RunExclusive(ctx context.Context, datasetID uuid.UUID, fn func(ctx context.Context) error) error
}

type Service struct {
	repo     Repository
	patients patient.Repository
	files    filestore.Store
	tx       TxRunner
}

func NewService(repo Repository, patients patient.Repository, files filestore.Store, tx TxRunner) *Service {
	return &Service{repo: repo, patients: patients, files: files, tx: tx}
}

// Upload stores a tabular file and registers a dataset for it. The detected
// header columns are returned so the caller can start mapping right away.
func (s *Service) Upload(ctx context.Context, fileName string, r io.Reader, dataType string) (*Dataset, []string, error) {
	if !tabular.IsCSV(fileName) && !tabular.IsExcel(fileName) {
		return nil, nil, apperr.Validationf("unsupported file type %q", filepath.Ext(fileName))
	}
	if dataType == "" {
		dataType = "generic"
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}

	table, err := tabular.Parse(fileName, bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperr.Validationf("cannot parse %s: %v", fileName, err)
	}
	if len(table.Columns) == 0 {
		return nil, nil, apperr.Validationf("file has no header row")
	}

	storedID, err := s.files.Save(ctx, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("store upload: %w", err)
	}

	d := &Dataset{
		Name:           strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		SourceFilename: fileName,
		StoredFileID:   storedID,
		DataType:       dataType,
		ColumnMap:      map[string]string{},
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, nil, err
	}
	return d, table.Columns, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFoundf("dataset %s", id)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Dataset, int, error) {
	datasets, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if datasets == nil {
		datasets = []*Dataset{}
	}
	return datasets, total, nil
}

// Delete removes a dataset and its stored file. Datasets that still own
// patients cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.patients.CountByDataset(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflictf("dataset %s still has %d patients", id, n)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	// Stored file cleanup is best effort.
	_ = s.files.Remove(ctx, d.StoredFileID)
	return nil
}

// Columns re-reads the stored file's header.
func (s *Service) Columns(ctx context.Context, id uuid.UUID) ([]string, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	table, err := s.loadTable(ctx, d)
	if err != nil {
		return nil, err
	}
	return table.Columns, nil
}

// MappingProposal is the suggestion payload for a dataset's file.
type MappingProposal struct {
	Columns     []string                      `json:"columns"`
	Suggestions map[string]mapping.Suggestion `json:"suggestions"`
	AutoMapped  map[string]string             `json:"auto_mapped"`
}

// SuggestMappings scores the file's columns against the canonical fields.
// Fields already confirmed in the dataset's column map are left alone.
func (s *Service) SuggestMappings(ctx context.Context, id uuid.UUID) (*MappingProposal, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	table, err := s.loadTable(ctx, d)
	if err != nil {
		return nil, err
	}

	engine := mapping.NewEngine(d.DataType)
	return &MappingProposal{
		Columns:     table.Columns,
		Suggestions: engine.Suggest(table.Columns, d.ColumnMap),
		AutoMapped:  engine.AutoMap(table.Columns, d.ColumnMap),
	}, nil
}

// ApplyResult reports one materialization run.
type ApplyResult struct {
	RowsProcessed    int               `json:"rows_processed"`
	PatientsCreated  int               `json:"patients_created"`
	PatientsUpdated  int               `json:"patients_updated"`
	CoercionFailures int               `json:"coercion_failures"`
	ColumnMap        map[string]string `json:"column_map"`
	Message          string            `json:"message"`
}

// ApplyMapping materializes the dataset's file through a confirmed column
// map. Rows are matched to existing patients by patient key, then by MRN
// across datasets; matched patients get every mapped field overwritten with
// the newly parsed value, unmapped columns go to extra_fields, and the full
// row is kept in raw. The confirmed map merges into the dataset's map.
func (s *Service) ApplyMapping(ctx context.Context, id uuid.UUID, columnMap map[string]string) (*ApplyResult, error) {
	confirmed := make(map[string]string, len(columnMap))
	for field, col := range columnMap {
		if strings.TrimSpace(col) == "" {
			continue
		}
		if !schema.IsCanonical(field) {
			return nil, apperr.Validationf("unknown canonical field %q", field)
		}
		confirmed[field] = col
	}
	if len(confirmed) == 0 {
		return nil, apperr.Validationf("column map has no mappings")
	}

	var result *ApplyResult
	err := s.tx.RunExclusive(ctx, id, func(ctx context.Context) error {
		d, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		table, err := s.loadTable(ctx, d)
		if err != nil {
			return err
		}

		res, err := s.materialize(ctx, d, table, confirmed)
		if err != nil {
			return err
		}

		for field, col := range confirmed {
			d.ColumnMap[field] = col
		}
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		res.ColumnMap = d.ColumnMap
		result = res
		return nil
	})
	if errors.Is(err, db.ErrLockNotAcquired) {
		return nil, apperr.Conflictf("dataset %s is busy", id)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) materialize(ctx context.Context, d *Dataset, table *tabular.Table, confirmed map[string]string) (*ApplyResult, error) {
	mappedCols := make(map[string]bool, len(confirmed))
	for _, col := range confirmed {
		mappedCols[col] = true
	}
	keyCol := confirmed["mrn"]
	if keyCol == "" {
		keyCol = d.ColumnMap["mrn"]
	}

	res := &ApplyResult{}
	for i, row := range table.Rows {
		res.RowsProcessed++
		key, byMRN := rowKey(row, keyCol, i)

		p, err := s.patients.GetByDatasetAndKey(ctx, d.ID, key)
		if err != nil {
			return nil, err
		}
		if p == nil && byMRN {
			if p, err = s.patients.GetByMRN(ctx, key); err != nil {
				return nil, err
			}
		}

		isNew := p == nil
		if isNew {
			p = &patient.Patient{
				DatasetID:   d.ID,
				PatientKey:  key,
				Raw:         map[string]interface{}{},
				ExtraFields: map[string]interface{}{},
			}
		}

		for field, col := range confirmed {
			def, _ := schema.Lookup(field)
			v := mapping.Coerce(row[col], def.Type)
			if v.IsNull() && strings.TrimSpace(row[col]) != "" {
				res.CoercionFailures++
			}
			p.SetField(field, v)
		}

		if p.ExtraFields == nil {
			p.ExtraFields = map[string]interface{}{}
		}
		raw := make(map[string]interface{}, len(table.Columns))
		for _, col := range table.Columns {
			raw[col] = row[col]
			if !mappedCols[col] && row[col] != "" {
				p.ExtraFields[col] = row[col]
			}
		}
		p.Raw = raw

		if isNew {
			if err := s.patients.Create(ctx, p); err != nil {
				return nil, err
			}
			res.PatientsCreated++
		} else {
			if err := s.patients.Update(ctx, p); err != nil {
				return nil, err
			}
			res.PatientsUpdated++
		}
	}

	res.Message = applyMessage(res.PatientsCreated, res.PatientsUpdated)
	return res, nil
}

func applyMessage(created, updated int) string {
	var parts []string
	if created > 0 {
		parts = append(parts, fmt.Sprintf("Created %d new patient record(s)", created))
	}
	if updated > 0 {
		parts = append(parts, fmt.Sprintf("Updated %d patient record(s)", updated))
	}
	if len(parts) == 0 {
		return "No changes made"
	}
	return strings.Join(parts, ". ")
}

// RawRows is a page of the stored file's rows.
type RawRows struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// RawData pages through the stored file as parsed, without touching the
// materialized patients.
func (s *Service) RawData(ctx context.Context, id uuid.UUID, limit, offset int) (*RawRows, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	table, err := s.loadTable(ctx, d)
	if err != nil {
		return nil, err
	}

	total := len(table.Rows)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &RawRows{
		Columns: table.Columns,
		Rows:    table.Rows[start:end],
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func (s *Service) loadTable(ctx context.Context, d *Dataset) (*tabular.Table, error) {
	rc, err := s.files.Open(ctx, d.StoredFileID)
	if err != nil {
		if errors.Is(err, filestore.ErrFileNotFound) {
			return nil, apperr.NotFoundf("source file for dataset %s", d.ID)
		}
		return nil, err
	}
	defer rc.Close()

	table, err := tabular.Parse(d.SourceFilename, rc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", d.SourceFilename, err)
	}
	return table, nil
}

// rowKey derives the patient key for a file row. A mapped, non-empty MRN is
// the key and matches across uploads; otherwise the row ordinal forms a key
// that is unique within this dataset only.
func rowKey(row map[string]string, keyCol string, ordinal int) (string, bool) {
	if keyCol != "" {
		if mrn := strings.TrimSpace(row[keyCol]); mrn != "" {
			return mrn, true
		}
	}
	return fmt.Sprintf("row_%d", ordinal+1), false
}
