package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cohortdesk/cohortdesk/internal/domain/mapping"
	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
	"github.com/cohortdesk/cohortdesk/internal/platform/db"
	"github.com/cohortdesk/cohortdesk/internal/platform/tabular"
)

// Report size caps keep the payload bounded on large files. Counts are
// always computed over every row; only the sample and row-summary lists
// are truncated.
const (
	maxFieldSamples = 5
	maxSampleValue  = 100
	maxRowSummaries = 20
)

// FieldMissingSample is one patient whose stored field is empty while the
// file has a value.
type FieldMissingSample struct {
	PatientKey  string `json:"patient_key"`
	PatientName string `json:"patient_name"`
	CSVValue    string `json:"csv_value"`
}

// FieldMissing summarizes one mapped field's recoverable gaps.
type FieldMissing struct {
	Column       string               `json:"column"`
	MissingCount int                  `json:"missing_count"`
	Samples      []FieldMissingSample `json:"samples"`
}

// RowMissing lists one patient's recoverable fields.
type RowMissing struct {
	PatientKey    string            `json:"patient_key"`
	PatientName   string            `json:"patient_name"`
	MissingFields map[string]string `json:"missing_fields"`
}

// ReprocessReport compares the stored patients against a re-read of the
// source file.
type ReprocessReport struct {
	UnmappedColumns     []string                `json:"unmapped_columns"`
	ExtraFieldsColumns  []string                `json:"extra_fields_columns"`
	MissingDataSummary  map[string]FieldMissing `json:"missing_data_summary"`
	RowsWithMissingData []RowMissing            `json:"rows_with_missing_data"`
	TotalRowsInFile     int                     `json:"total_rows_in_file"`
	TotalPatientsInDB   int                     `json:"total_patients_in_db"`
}

// CheckReprocess re-reads the dataset's file and reports what a reprocess
// could recover. It never mutates patients.
func (s *Service) CheckReprocess(ctx context.Context, id uuid.UUID) (*ReprocessReport, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(d.ColumnMap) == 0 {
		return nil, apperr.Validationf("dataset %s has no confirmed column map", id)
	}
	table, err := s.loadTable(ctx, d)
	if err != nil {
		return nil, err
	}
	patients, err := s.patients.ListAllByDataset(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ReprocessReport{
		MissingDataSummary: map[string]FieldMissing{},
		TotalRowsInFile:    len(table.Rows),
		TotalPatientsInDB:  len(patients),
	}

	mappedCols := make(map[string]bool, len(d.ColumnMap))
	for _, col := range d.ColumnMap {
		mappedCols[col] = true
	}
	overflowCols := make(map[string]bool)
	for _, p := range patients {
		for k := range p.ExtraFields {
			overflowCols[k] = true
		}
	}

	for _, col := range table.Columns {
		if mappedCols[col] {
			continue
		}
		if overflowCols[col] {
			report.ExtraFieldsColumns = append(report.ExtraFieldsColumns, col)
		} else {
			report.UnmappedColumns = append(report.UnmappedColumns, col)
		}
	}

	rows := rowIndex(table, d.ColumnMap["mrn"])
	rowMissing := make(map[string]*RowMissing)

	for _, field := range sortedFields(d.ColumnMap) {
		col := d.ColumnMap[field]
		summary := FieldMissing{Column: col}
		for _, p := range patients {
			row, ok := rows[p.PatientKey]
			if !ok {
				continue
			}
			fileValue := strings.TrimSpace(row[col])
			if fileValue == "" || !p.FieldEmpty(field) {
				continue
			}
			summary.MissingCount++
			if len(summary.Samples) < maxFieldSamples {
				summary.Samples = append(summary.Samples, FieldMissingSample{
					PatientKey:  p.PatientKey,
					PatientName: p.DisplayName(),
					CSVValue:    truncate(fileValue, maxSampleValue),
				})
			}

			rm, ok := rowMissing[p.PatientKey]
			if !ok {
				rm = &RowMissing{
					PatientKey:    p.PatientKey,
					PatientName:   p.DisplayName(),
					MissingFields: map[string]string{},
				}
				rowMissing[p.PatientKey] = rm
			}
			rm.MissingFields[field] = truncate(fileValue, maxSampleValue)
		}
		if summary.MissingCount > 0 {
			report.MissingDataSummary[field] = summary
		}
	}

	keys := make([]string, 0, len(rowMissing))
	for k := range rowMissing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(report.RowsWithMissingData) >= maxRowSummaries {
			break
		}
		report.RowsWithMissingData = append(report.RowsWithMissingData, *rowMissing[k])
	}

	return report, nil
}

// UpdateResult reports a mutation derived from the reprocess check.
type UpdateResult struct {
	UpdatedCount int    `json:"updated_count"`
	Message      string `json:"message"`
}

// UpdateFromFile fills empty canonical fields from the file. Populated
// fields are never overwritten, which makes the operation idempotent.
func (s *Service) UpdateFromFile(ctx context.Context, id uuid.UUID) (*UpdateResult, error) {
	var result *UpdateResult
	err := s.tx.RunExclusive(ctx, id, func(ctx context.Context) error {
		d, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if len(d.ColumnMap) == 0 {
			return apperr.Validationf("dataset %s has no confirmed column map", id)
		}
		table, err := s.loadTable(ctx, d)
		if err != nil {
			return err
		}
		patients, err := s.patients.ListAllByDataset(ctx, id)
		if err != nil {
			return err
		}

		rows := rowIndex(table, d.ColumnMap["mrn"])
		updated := 0
		for _, p := range patients {
			row, ok := rows[p.PatientKey]
			if !ok {
				continue
			}
			filled := 0
			for field, col := range d.ColumnMap {
				if !p.FieldEmpty(field) || strings.TrimSpace(row[col]) == "" {
					continue
				}
				def, _ := schema.Lookup(field)
				v := mapping.Coerce(row[col], def.Type)
				if v.IsNull() {
					continue
				}
				p.SetField(field, v)
				filled++
			}
			if filled > 0 {
				if err := s.patients.Update(ctx, p); err != nil {
					return err
				}
				updated++
			}
		}

		msg := "No changes made"
		if updated > 0 {
			msg = fmt.Sprintf("Updated %d patient record(s) from file", updated)
		}
		result = &UpdateResult{UpdatedCount: updated, Message: msg}
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

// PromoteToOverflow copies unmapped file columns into matching patients'
// extra_fields without touching the column map. With no explicit column
// list, every currently unmapped column is promoted.
func (s *Service) PromoteToOverflow(ctx context.Context, id uuid.UUID, columns []string) (*UpdateResult, error) {
	var result *UpdateResult
	err := s.tx.RunExclusive(ctx, id, func(ctx context.Context) error {
		d, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		table, err := s.loadTable(ctx, d)
		if err != nil {
			return err
		}

		mappedCols := make(map[string]bool, len(d.ColumnMap))
		for _, col := range d.ColumnMap {
			mappedCols[col] = true
		}

		inFile := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			inFile[col] = true
		}

		var promote []string
		if len(columns) == 0 {
			for _, col := range table.Columns {
				if !mappedCols[col] {
					promote = append(promote, col)
				}
			}
		} else {
			for _, col := range columns {
				if !inFile[col] {
					return apperr.Validationf("column %q is not in the file", col)
				}
				if mappedCols[col] {
					return apperr.Validationf("column %q is already mapped", col)
				}
				promote = append(promote, col)
			}
		}
		if len(promote) == 0 {
			result = &UpdateResult{UpdatedCount: 0, Message: "No changes made"}
			return nil
		}

		patients, err := s.patients.ListAllByDataset(ctx, id)
		if err != nil {
			return err
		}

		rows := rowIndex(table, d.ColumnMap["mrn"])
		updated := 0
		for _, p := range patients {
			row, ok := rows[p.PatientKey]
			if !ok {
				continue
			}
			changed := false
			if p.ExtraFields == nil {
				p.ExtraFields = map[string]interface{}{}
			}
			for _, col := range promote {
				value := strings.TrimSpace(row[col])
				if value == "" {
					continue
				}
				if existing, ok := p.ExtraFields[col]; ok && existing == value {
					continue
				}
				p.ExtraFields[col] = value
				changed = true
			}
			if changed {
				if err := s.patients.Update(ctx, p); err != nil {
					return err
				}
				updated++
			}
		}

		msg := "No changes made"
		if updated > 0 {
			msg = fmt.Sprintf("Promoted %d column(s) into %d patient record(s)", len(promote), updated)
		}
		result = &UpdateResult{UpdatedCount: updated, Message: msg}
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

// rowIndex keys every file row the same way materialization does. Later
// duplicate keys win, matching row order.
func rowIndex(table *tabular.Table, keyCol string) map[string]map[string]string {
	index := make(map[string]map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		key, _ := rowKey(row, keyCol, i)
		index[key] = row
	}
	return index
}

func sortedFields(columnMap map[string]string) []string {
	fields := make([]string, 0, len(columnMap))
	for f := range columnMap {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
