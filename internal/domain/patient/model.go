// Package patient holds the materialized patient records, their direct edit
// operations, missing-data reporting and the fill engine.
package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cohortdesk/cohortdesk/internal/domain/mapping"
)

// Patient is one materialized row of an uploaded dataset. Canonical fields
// are nullable; raw keeps the original row write-once and extra_fields holds
// overflow and custom field values.
type Patient struct {
	ID         uuid.UUID `json:"id"`
	DatasetID  uuid.UUID `json:"dataset_id"`
	PatientKey string    `json:"patient_key"`

	DateOfService   *time.Time `json:"date_of_service"`
	Location        *string    `json:"location"`
	MRN             *string    `json:"mrn"`
	FirstName       *string    `json:"first_name"`
	LastName        *string    `json:"last_name"`
	ReasonForVisit  *string    `json:"reason_for_visit"`
	Points          *float64   `json:"points"`
	Percent         *float64   `json:"percent"`
	Category        *string    `json:"category"`
	PCaConfirmed    *bool      `json:"pca_confirmed"`
	GleasonGrade    *string    `json:"gleason_grade"`
	AgeGroup        *string    `json:"age_group"`
	Race            *string    `json:"race"`
	FamilyHistory   *string    `json:"family_history"`
	GeneticMutation *string    `json:"genetic_mutation"`

	Raw         map[string]interface{} `json:"raw"`
	ExtraFields map[string]interface{} `json:"extra_fields"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// stringFieldPtr returns the pointer cell for a string-typed canonical field.
func (p *Patient) stringFieldPtr(field string) **string {
	switch field {
	case "location":
		return &p.Location
	case "mrn":
		return &p.MRN
	case "first_name":
		return &p.FirstName
	case "last_name":
		return &p.LastName
	case "reason_for_visit":
		return &p.ReasonForVisit
	case "category":
		return &p.Category
	case "gleason_grade":
		return &p.GleasonGrade
	case "age_group":
		return &p.AgeGroup
	case "race":
		return &p.Race
	case "family_history":
		return &p.FamilyHistory
	case "genetic_mutation":
		return &p.GeneticMutation
	}
	return nil
}

func (p *Patient) floatFieldPtr(field string) **float64 {
	switch field {
	case "points":
		return &p.Points
	case "percent":
		return &p.Percent
	}
	return nil
}

// SetField writes a typed value into a canonical field. A null value clears
// the field. Unknown field names are ignored.
func (p *Patient) SetField(field string, v mapping.Value) {
	switch field {
	case "date_of_service":
		if v.Kind == mapping.KindDatetime {
			t := v.Time
			p.DateOfService = &t
		} else {
			p.DateOfService = nil
		}
	case "pca_confirmed":
		if v.Kind == mapping.KindBool {
			b := v.Bool
			p.PCaConfirmed = &b
		} else {
			p.PCaConfirmed = nil
		}
	case "points", "percent":
		cell := p.floatFieldPtr(field)
		if v.Kind == mapping.KindFloat {
			f := v.Float
			*cell = &f
		} else {
			*cell = nil
		}
	default:
		cell := p.stringFieldPtr(field)
		if cell == nil {
			return
		}
		if v.Kind == mapping.KindString {
			s := v.Str
			*cell = &s
		} else {
			*cell = nil
		}
	}
}

// FieldValue returns the current value of a canonical field, or nil.
func (p *Patient) FieldValue(field string) interface{} {
	switch field {
	case "date_of_service":
		if p.DateOfService == nil {
			return nil
		}
		return *p.DateOfService
	case "pca_confirmed":
		if p.PCaConfirmed == nil {
			return nil
		}
		return *p.PCaConfirmed
	case "points", "percent":
		cell := p.floatFieldPtr(field)
		if *cell == nil {
			return nil
		}
		return **cell
	default:
		cell := p.stringFieldPtr(field)
		if cell == nil || *cell == nil {
			return nil
		}
		return **cell
	}
}

// FieldEmpty reports whether a canonical field is null or blank.
func (p *Patient) FieldEmpty(field string) bool {
	v := p.FieldValue(field)
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// FieldDisplay renders the field value for report samples.
func (p *Patient) FieldDisplay(field string) string {
	v := p.FieldValue(field)
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return fmt.Sprintf("%v", v)
}

// DisplayName builds the identifying string used in report samples.
func (p *Patient) DisplayName() string {
	var parts []string
	if p.FirstName != nil && *p.FirstName != "" {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil && *p.LastName != "" {
		parts = append(parts, *p.LastName)
	}
	if len(parts) == 0 {
		return p.PatientKey
	}
	return strings.Join(parts, " ")
}
