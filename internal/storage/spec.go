package storage

import (
	"fmt"
	"math"
	"time"

	"evdemand/internal/nullable"
	"evdemand/internal/table"
)

// Type is the logical column type; each backend maps it to its dialect.
type Type int

const (
	Text Type = iota
	Float
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	case Timestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// ColumnSpec describes one destination column.
type ColumnSpec struct {
	Name     string
	Type     Type
	Nullable bool
}

// TableSpec describes a destination table. Unique names the natural key.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	Unique  []string
}

// ColumnNames returns the column names in order.
func (s TableSpec) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// SpecFor derives a TableSpec from t.
//
// A column's type is taken from its first non-nil cell: nullable.Float maps
// to Float, time.Time to Timestamp, anything else to Text. Columns that are
// null throughout are Text. Unique columns are NOT NULL.
//
// Errors:
//   - A unique column that t does not have.
func SpecFor(name string, t *table.Table, unique ...string) (TableSpec, error) {
	for _, u := range unique {
		if !t.Has(u) {
			return TableSpec{}, fmt.Errorf("storage: unique column %q not in table %s", u, t.Name)
		}
	}
	key := make(map[string]bool, len(unique))
	for _, u := range unique {
		key[u] = true
	}

	spec := TableSpec{Name: name, Unique: append([]string(nil), unique...)}
	for _, c := range t.Columns {
		spec.Columns = append(spec.Columns, ColumnSpec{
			Name:     c,
			Type:     inferType(t, c),
			Nullable: !key[c],
		})
	}
	return spec, nil
}

func inferType(t *table.Table, col string) Type {
	for _, r := range t.Rows {
		switch r[col].(type) {
		case nil:
			continue
		case nullable.Float:
			return Float
		case time.Time:
			return Timestamp
		default:
			return Text
		}
	}
	return Text
}

// Rows materialises t in spec column order as driver values: nullable.Float
// becomes float64 or nil, time.Time stays time.Time, text stays string.
// Rows with a null unique-key cell are dropped.
func Rows(spec TableSpec, t *table.Table) [][]any {
	cols := spec.ColumnNames()
	keyIx := indicesOf(cols, spec.Unique)

	out := make([][]any, 0, t.Len())
	for _, r := range t.Rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = driverValue(r[c])
		}
		if hasNull(row, keyIx) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func driverValue(v any) any {
	switch t := v.(type) {
	case nullable.Float:
		if !t.Valid {
			return nil
		}
		return t.V
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.UTC()
	default:
		return v
	}
}

// FiniteOnly replaces +/-Inf with nil for dialects without infinite floats.
func FiniteOnly(rows [][]any) [][]any {
	for _, row := range rows {
		for i, v := range row {
			if f, ok := v.(float64); ok && math.IsInf(f, 0) {
				row[i] = nil
			}
		}
	}
	return rows
}

// Chunks splits rows so that no statement binds more than maxParams values.
func Chunks(rows [][]any, width, maxParams int) [][][]any {
	if width < 1 {
		width = 1
	}
	per := maxParams / width
	if per < 1 {
		per = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

func indicesOf(cols, names []string) []int {
	out := make([]int, 0, len(names))
	for _, n := range names {
		for i, c := range cols {
			if c == n {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func hasNull(row []any, ix []int) bool {
	for _, i := range ix {
		if row[i] == nil {
			return true
		}
	}
	return false
}
