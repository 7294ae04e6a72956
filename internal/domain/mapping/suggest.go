package mapping

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
)

// Suggestion pairs a source column with the confidence of the match.
type Suggestion struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// pattern is one precompiled header alias.
type pattern struct {
	search  *regexp.Regexp
	full    *regexp.Regexp
	alias   string // pattern with regex metacharacters stripped, normalized
	litFlat string // same, with all separators removed
}

func compilePatterns(raw []string) []pattern {
	out := make([]pattern, 0, len(raw))
	for _, p := range raw {
		search, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		full, err := regexp.Compile(`(?i)^(?:` + p + `)$`)
		if err != nil {
			continue
		}
		alias := strings.TrimSpace(strings.NewReplacer(".*", "", "^", "", "$", "").Replace(p))
		out = append(out, pattern{
			search:  search,
			full:    full,
			alias:   strings.ToLower(alias),
			litFlat: flatten(patternLiteral(p)),
		})
	}
	return out
}

// Engine scores uploaded column headers against the canonical field catalog.
// It is pure: the same inputs always produce the same suggestions.
type Engine struct {
	patterns map[string][]pattern
	critical map[string][]pattern
}

// NewEngine builds an engine for a dataset type. The type selects the alias
// set; unknown types use the generic one.
func NewEngine(dataType string) *Engine {
	raw := patternsFor(dataType)
	e := &Engine{
		patterns: make(map[string][]pattern, len(raw)),
		critical: make(map[string][]pattern, len(criticalPatterns)),
	}
	for field, ps := range raw {
		e.patterns[field] = compilePatterns(ps)
	}
	for field, ps := range criticalPatterns {
		e.critical[field] = compilePatterns(ps)
	}
	return e
}

// Suggest maps canonical fields to at most one source column each, with a
// confidence score. Fields already present in existing keep their assignment
// and their columns are not reused. Three passes run in order: the
// identification fields first, then exact normalized-name matches, then
// alias patterns with a fuzzy fallback.
func (e *Engine) Suggest(columns []string, existing map[string]string) map[string]Suggestion {
	suggestions := make(map[string]Suggestion)
	used := make(map[string]bool, len(existing))
	for _, col := range existing {
		used[col] = true
	}

	taken := func(field string) bool {
		if _, ok := existing[field]; ok {
			return true
		}
		_, ok := suggestions[field]
		return ok
	}

	// Pass 1: identification fields. These must be captured whenever the
	// file carries them in any recognizable spelling, so the acceptance
	// threshold is lower than for the general pass.
	for _, field := range criticalOrder {
		if taken(field) {
			continue
		}
		var bestCol string
		var bestScore float64
		fieldFlat := flatten(field)

		for _, col := range columns {
			if used[col] {
				continue
			}
			colClean := cleanColumn(col)
			colFlat := flatten(colClean)

			for _, p := range e.critical[field] {
				if colFlat == p.litFlat || strings.EqualFold(colClean, patternLiteral(p.alias)) {
					bestCol = col
					bestScore = 1.0
					break
				}
				if p.search.MatchString(colClean) && 0.95 > bestScore {
					bestScore = 0.95
					bestCol = col
				}
			}
			if colFlat == fieldFlat && bestScore < 1.0 {
				bestScore = 1.0
				bestCol = col
			}
		}

		if bestCol != "" && bestScore > 0.5 {
			suggestions[field] = Suggestion{Column: bestCol, Score: bestScore}
			used[bestCol] = true
		}
	}

	// Pass 2: exact normalized-name matches for every remaining field.
	for _, field := range schema.FieldNames() {
		if taken(field) {
			continue
		}
		fieldFlat := flatten(field)
		for _, col := range columns {
			if used[col] {
				continue
			}
			if flatten(cleanColumn(col)) == fieldFlat {
				suggestions[field] = Suggestion{Column: col, Score: 1.0}
				used[col] = true
				break
			}
		}
	}

	// Pass 3: alias patterns plus a fuzzy fallback for the rest.
	for _, field := range schema.FieldNames() {
		if taken(field) {
			continue
		}
		var bestCol string
		var bestScore float64
		for _, col := range columns {
			if used[col] {
				continue
			}
			if score := e.score(field, cleanColumn(col)); score > bestScore {
				bestScore = score
				bestCol = col
			}
		}

		threshold := 0.3
		if lowThresholdFields[field] {
			threshold = 0.1
		}
		if bestCol != "" && bestScore > threshold {
			suggestions[field] = Suggestion{Column: bestCol, Score: bestScore}
			used[bestCol] = true
		}
	}

	return suggestions
}

// AutoMap returns every suggested assignment as a ready-to-confirm column
// map. Any positive-confidence suggestion is taken.
func (e *Engine) AutoMap(columns []string, existing map[string]string) map[string]string {
	mapped := make(map[string]string)
	for field, s := range e.Suggest(columns, existing) {
		if s.Score > 0 {
			mapped[field] = s.Column
		}
	}
	return mapped
}

// score rates one cleaned column name against a field's aliases, best tier
// wins: whole-name regex match 1.0, literal alias 0.95, partial regex match
// proportional and capped at 0.9, separator-insensitive literal 1.0, and a
// Levenshtein fallback against the field's own name and label scaled to at
// most 0.6.
func (e *Engine) score(field, colClean string) float64 {
	normalized := normalizeName(colClean)
	if normalized == "" {
		return 0
	}

	var best float64
	for _, p := range e.patterns[field] {
		var score float64
		switch {
		case p.full.MatchString(normalized):
			score = 1.0
		case normalized == p.alias:
			score = 0.95
		default:
			if m := p.search.FindString(normalized); m != "" {
				score = float64(len(m)) / float64(len(normalized))
				if score > 0.9 {
					score = 0.9
				}
			}
		}
		if score > best {
			best = score
		}
	}

	colFlat := flatten(normalized)
	for _, p := range e.patterns[field] {
		if colFlat == p.litFlat && best < 1.0 {
			best = 1.0
		}
	}

	if fuzzy := fuzzyScore(field, normalized); fuzzy > best {
		best = fuzzy
	}
	return best
}

// fuzzyScore rates token overlap between the column and the field's key and
// label. A column token counts as overlapping when it is a near edit-distance
// match of a field token. The result is scaled down so fuzzy overlap never
// outranks an alias hit.
func fuzzyScore(field, colNorm string) float64 {
	def, ok := schema.Lookup(field)
	if !ok {
		return 0
	}
	colTokens := strings.Fields(colNorm)
	best := tokenOverlap(colTokens, strings.Fields(normalizeName(field)))
	if s := tokenOverlap(colTokens, strings.Fields(normalizeName(cleanColumn(def.Label)))); s > best {
		best = s
	}
	return best * 0.6
}

func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	for _, t := range a {
		for _, u := range b {
			if similarity(t, u) >= 0.8 {
				matched++
				break
			}
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matched) / float64(denom)
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	d := levenshtein.ComputeDistance(a, b)
	s := 1 - float64(d)/float64(longest)
	if s < 0 {
		return 0
	}
	return s
}
