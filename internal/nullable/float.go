// Package nullable provides the optional numeric used for every numeric cell
// in the build.
//
// Propagation rules:
//   - Parse never fails: malformed input is Null.
//   - Add and Div return Null when either operand is Null.
//   - Div follows IEEE-754 otherwise: x/0 is +/-Inf; 0/0 is NaN, which is
//     reported as Null because NaN is the float spelling of "missing".
//   - Sum skips Null values; an empty or all-null group sums to 0.
package nullable

import (
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that may be null.
type Float struct {
	V     float64
	Valid bool
}

// Null is the zero Float.
var Null = Float{}

// Of returns a valid Float. NaN is treated as null.
func Of(v float64) Float {
	if math.IsNaN(v) {
		return Null
	}
	return Float{V: v, Valid: true}
}

// Parse converts s into a Float. Leading/trailing whitespace is ignored.
// Thousands separators and hexadecimal forms such as "0x10" are not
// accepted. Anything unparseable is Null.
func Parse(s string) Float {
	s = strings.TrimSpace(s)
	if s == "" || isHex(s) {
		return Null
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null
	}
	return Of(v)
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// FromAny coerces a cell value into a Float.
func FromAny(v any) Float {
	switch t := v.(type) {
	case nil:
		return Null
	case Float:
		return t
	case float64:
		return Of(t)
	case float32:
		return Of(float64(t))
	case int:
		return Of(float64(t))
	case int64:
		return Of(float64(t))
	case string:
		return Parse(t)
	case []byte:
		return Parse(string(t))
	default:
		return Null
	}
}

// OrZero returns V, or 0 when f is null.
func (f Float) OrZero() float64 {
	if !f.Valid {
		return 0
	}
	return f.V
}

// Int returns f truncated to an int and whether f is valid and finite.
func (f Float) Int() (int, bool) {
	if !f.Valid || math.IsInf(f.V, 0) {
		return 0, false
	}
	return int(f.V), true
}

// Add returns a+b, or Null when either is null.
func Add(a, b Float) Float {
	if !a.Valid || !b.Valid {
		return Null
	}
	return Of(a.V + b.V)
}

// Div returns a/b with plain float semantics. No clamping: a zero
// denominator yields +/-Inf (or Null for 0/0).
func Div(a, b Float) Float {
	if !a.Valid || !b.Valid {
		return Null
	}
	return Of(a.V / b.V)
}

// String renders f for flat-file output.
func (f Float) String() string {
	switch {
	case !f.Valid:
		return ""
	case math.IsInf(f.V, 1):
		return "inf"
	case math.IsInf(f.V, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f.V, 'f', -1, 64)
	}
}

// Sum accumulates Floats, skipping nulls.
type Sum struct {
	total float64
	n     int
}

// Add folds f into the sum.
func (s *Sum) Add(f Float) {
	if !f.Valid {
		return
	}
	s.total += f.V
	s.n++
}

// Value returns the total. Empty and all-null sums are 0.
func (s Sum) Value() Float { return Of(s.total) }

// Count returns the number of non-null values folded in.
func (s Sum) Count() int { return s.n }
