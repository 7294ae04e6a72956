// Package schema holds the canonical patient field catalog and the registry
// of process-wide custom fields. The catalog is immutable and loaded once;
// custom fields live in the database and their values live exclusively in
// each patient's extra_fields.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// FieldType enumerates the value types a canonical field can carry.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
)

// Field domains group canonical fields for display.
const (
	DomainIdentification = "Patient Identification"
	DomainClinical       = "Clinical Data"
	DomainDemographics   = "Demographics"
)

// CanonicalField describes one attribute of the target patient schema.
type CanonicalField struct {
	Field    string    `json:"field"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Domain   string    `json:"domain"`
	Required bool      `json:"required"`
}

// catalog is the fixed canonical field set, in registration order.
// Identification fields come first; the suggestion engine relies on this
// ordering for deterministic tie-breaking.
var catalog = []CanonicalField{
	{Field: "date_of_service", Label: "Date of Service", Type: TypeDatetime, Domain: DomainIdentification},
	{Field: "location", Label: "Location", Type: TypeString, Domain: DomainIdentification},
	{Field: "mrn", Label: "MRN", Type: TypeString, Domain: DomainIdentification},
	{Field: "first_name", Label: "First Name (FN)", Type: TypeString, Domain: DomainIdentification},
	{Field: "last_name", Label: "Last Name (LN)", Type: TypeString, Domain: DomainIdentification},
	{Field: "reason_for_visit", Label: "Reason for Visit", Type: TypeString, Domain: DomainIdentification},
	{Field: "points", Label: "Points", Type: TypeFloat, Domain: DomainClinical},
	{Field: "percent", Label: "Percent", Type: TypeFloat, Domain: DomainClinical},
	{Field: "category", Label: "Category", Type: TypeString, Domain: DomainClinical},
	{Field: "pca_confirmed", Label: "PCa confirmed?", Type: TypeBoolean, Domain: DomainClinical},
	{Field: "gleason_grade", Label: "Gleason Grade (GG)", Type: TypeString, Domain: DomainClinical},
	{Field: "age_group", Label: "Age Group", Type: TypeString, Domain: DomainDemographics},
	{Field: "race", Label: "Race", Type: TypeString, Domain: DomainDemographics},
	{Field: "family_history", Label: "FH of prostate", Type: TypeString, Domain: DomainDemographics},
	{Field: "genetic_mutation", Label: "Genetic", Type: TypeString, Domain: DomainDemographics},
}

var fieldMap = func() map[string]CanonicalField {
	m := make(map[string]CanonicalField, len(catalog))
	for _, f := range catalog {
		m[f.Field] = f
	}
	return m
}()

// Fields returns the canonical fields in registration order.
func Fields() []CanonicalField {
	out := make([]CanonicalField, len(catalog))
	copy(out, catalog)
	return out
}

// FieldNames returns the canonical field keys in registration order.
func FieldNames() []string {
	out := make([]string, len(catalog))
	for i, f := range catalog {
		out[i] = f.Field
	}
	return out
}

// Domains groups the canonical fields by domain, fields in registration order.
func Domains() map[string][]CanonicalField {
	m := make(map[string][]CanonicalField)
	for _, f := range catalog {
		m[f.Domain] = append(m[f.Domain], f)
	}
	return m
}

// FieldMap returns a lookup from field key to its definition.
func FieldMap() map[string]CanonicalField {
	m := make(map[string]CanonicalField, len(fieldMap))
	for k, v := range fieldMap {
		m[k] = v
	}
	return m
}

// Lookup returns the definition for a canonical field key.
func Lookup(field string) (CanonicalField, bool) {
	f, ok := fieldMap[field]
	return f, ok
}

// IsCanonical reports whether name is a canonical field key.
func IsCanonical(name string) bool {
	_, ok := fieldMap[name]
	return ok
}

// CustomField is a process-wide field registered outside the canonical
// catalog; its values live in each patient's extra_fields.
type CustomField struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DefaultValue *string   `json:"default_value,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
