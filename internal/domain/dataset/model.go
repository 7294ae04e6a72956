// Package dataset owns uploaded files, their column maps, materialization of
// patients from rows, and the reconciliation workflow.
package dataset

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is one uploaded tabular file plus its mapping state. ColumnMap
// maps canonical field names to source column names and only grows: applying
// a new mapping merges into it.
type Dataset struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	SourceFilename string            `json:"source_filename"`
	StoredFileID   string            `json:"stored_file_id"`
	DataType       string            `json:"data_type"`
	ColumnMap      map[string]string `json:"column_map"`
	CreatedAt      time.Time         `json:"created_at"`

	// PatientCount is filled on read paths, not persisted.
	PatientCount int `json:"patient_count"`
}
