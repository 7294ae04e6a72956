package mapping

import (
	"strconv"
	"strings"
	"time"

	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
)

// dateLayouts are tried in order. US-style month-first layouts come before
// day-first ones, matching how source sheets are produced.
var dateLayouts = []string{
	"01/02/2006",
	"01-02-2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// truthyTokens are the accepted spellings of boolean true, lowercased.
var truthyTokens = map[string]bool{
	"true":      true,
	"yes":       true,
	"1":         true,
	"y":         true,
	"confirmed": true,
}

// Coerce parses raw cell text into a typed Value for the given field type.
// Blank cells and unparseable numbers or dates collapse to the null value;
// coercion never fails.
func Coerce(raw string, fieldType schema.FieldType) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Null()
	}

	switch fieldType {
	case schema.TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Null()
		}
		return Float(f)
	case schema.TypeInteger:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Sheets often carry integers as "3.0".
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || f != float64(int64(f)) {
				return Null()
			}
			return Integer(int64(f))
		}
		return Integer(i)
	case schema.TypeBoolean:
		return Bool(truthyTokens[strings.ToLower(raw)])
	case schema.TypeDatetime:
		if t, ok := ParseDate(raw); ok {
			return Datetime(t)
		}
		return Null()
	default:
		return String(raw)
	}
}

// ParseDate tries the known date layouts in order.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
