package patient

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cohortdesk/cohortdesk/internal/domain/mapping"
)

const (
	FillModeStrict = "strict"
	FillModeImpute = "impute"
)

// Risk category boundaries on the points score.
const (
	categoryHighMin         = 7.0
	categoryIntermediateMin = 4.0
)

// imputableStringFields may be filled from the population mode in impute
// mode. Identity fields are deliberately absent.
var imputableStringFields = []string{
	"location", "category", "gleason_grade", "age_group",
	"race", "family_history", "genetic_mutation",
}

var imputableFloatFields = []string{"points", "percent"}

// fillPatients runs the fill policy over an already-loaded population and
// returns the patients that changed plus the total fields filled. Both modes
// apply the deterministic derivations; impute additionally fills from
// population statistics computed over the pre-fill values. Populated fields
// are never overwritten.
func fillPatients(patients []*Patient, mode string) ([]*Patient, int) {
	var medians map[string]float64
	var modes map[string]string
	if mode == FillModeImpute {
		medians = populationMedians(patients)
		modes = populationModes(patients)
	}

	var changed []*Patient
	fieldsFilled := 0
	for _, p := range patients {
		// Statistics first, then derivations, so a freshly imputed points
		// value yields its category in the same run and a repeat run finds
		// nothing left to fill.
		filled := 0
		if mode == FillModeImpute {
			filled += imputeFields(p, medians, modes)
		}
		filled += deriveFields(p)
		if filled > 0 {
			changed = append(changed, p)
			fieldsFilled += filled
		}
	}
	return changed, fieldsFilled
}

// deriveFields fills fields with an unambiguous derivation from values the
// patient already has.
func deriveFields(p *Patient) int {
	filled := 0

	if p.FieldEmpty("category") && p.Points != nil {
		p.SetField("category", mapping.String(categoryForPoints(*p.Points)))
		filled++
	}

	if p.FieldEmpty("age_group") {
		if age, ok := ageFromExtra(p.ExtraFields); ok {
			p.SetField("age_group", mapping.String(ageGroupFor(age)))
			filled++
		}
	}

	return filled
}

func imputeFields(p *Patient, medians map[string]float64, modes map[string]string) int {
	filled := 0
	for _, field := range imputableFloatFields {
		if !p.FieldEmpty(field) {
			continue
		}
		if m, ok := medians[field]; ok {
			p.SetField(field, mapping.Float(m))
			filled++
		}
	}
	for _, field := range imputableStringFields {
		if !p.FieldEmpty(field) {
			continue
		}
		if m, ok := modes[field]; ok {
			p.SetField(field, mapping.String(m))
			filled++
		}
	}
	return filled
}

func categoryForPoints(points float64) string {
	switch {
	case points >= categoryHighMin:
		return "High"
	case points >= categoryIntermediateMin:
		return "Intermediate"
	default:
		return "Low"
	}
}

func ageGroupFor(age float64) string {
	switch {
	case age < 50:
		return "Under 50"
	case age < 60:
		return "50-59"
	case age < 70:
		return "60-69"
	default:
		return "70+"
	}
}

// ageFromExtra reads a numeric age out of the overflow fields.
func ageFromExtra(extra map[string]interface{}) (float64, bool) {
	v, ok := extra["age"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// populationMedians computes the median of each numeric field over the
// patients that have it.
func populationMedians(patients []*Patient) map[string]float64 {
	medians := make(map[string]float64, len(imputableFloatFields))
	for _, field := range imputableFloatFields {
		var values []float64
		for _, p := range patients {
			if v := p.FieldValue(field); v != nil {
				values = append(values, v.(float64))
			}
		}
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		mid := len(values) / 2
		if len(values)%2 == 1 {
			medians[field] = values[mid]
		} else {
			medians[field] = (values[mid-1] + values[mid]) / 2
		}
	}
	return medians
}

// populationModes computes the most frequent value of each categorical
// field; frequency ties break to the lexicographically smallest value so
// repeated runs agree.
func populationModes(patients []*Patient) map[string]string {
	modes := make(map[string]string, len(imputableStringFields))
	for _, field := range imputableStringFields {
		counts := make(map[string]int)
		for _, p := range patients {
			if v := p.FieldValue(field); v != nil {
				s := strings.TrimSpace(fmt.Sprintf("%v", v))
				if s != "" {
					counts[s]++
				}
			}
		}
		if len(counts) == 0 {
			continue
		}
		var best string
		bestCount := -1
		for value, count := range counts {
			if count > bestCount || (count == bestCount && value < best) {
				best = value
				bestCount = count
			}
		}
		modes[field] = best
	}
	return modes
}
