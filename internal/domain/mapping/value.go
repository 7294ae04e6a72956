// Package mapping turns uploaded column headers into canonical field
// assignments and coerces raw cell text into typed field values.
package mapping

import (
	"encoding/json"
	"time"
)

// Kind tags the primitive type a Value carries.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBool
	KindDatetime
)

// Value is a tagged union over the primitive types a canonical field can
// hold. Coercion failures collapse to the null value rather than erroring.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
}

func Null() Value               { return Value{Kind: KindNull} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Integer(i int64) Value     { return Value{Kind: KindInteger, Int: i} }
func Float(f float64) Value     { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Datetime(t time.Time) Value { return Value{Kind: KindDatetime, Time: t} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Interface returns the native Go value, or nil for the null value.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInteger:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindDatetime:
		return v.Time
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
