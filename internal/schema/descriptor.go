// Package schema declares the canonical shape of every source extract.
//
// A Descriptor is consulted by the normalizer at run time: it says which
// source columns are accepted, what they are renamed to, how their values are
// coerced, and which columns are mandatory with a default. Everything else is
// optional and simply absent when a vendor extract omits it.
package schema

// Kind selects the coercion applied to a field.
type Kind int

const (
	// String values are trimmed; empty becomes null.
	String Kind = iota
	// Numeric values become nullable.Float (null on parse failure).
	Numeric
	// State values are upper-cased two-letter codes, passed through unvalidated.
	State
	// StateName values are full state names; the normalizer also derives a
	// "state" code column from them.
	StateName
	// Timestamp values are kept as text and decomposed by AddTimeParts.
	Timestamp
)

// Field maps one accepted source column onto a canonical column.
type Field struct {
	// Source is the lower-cased, trimmed header name accepted from the extract.
	Source string
	// Canonical is the column name used by every downstream stage.
	Canonical string
	Kind      Kind
	// Default, when non-empty, makes the field mandatory: the column is always
	// emitted and nil/empty cells take this sentinel.
	Default string
}

// Descriptor is the declared schema of one source.
type Descriptor struct {
	Name   string
	Fields []Field
	// TimeColumn, when set, is decomposed into Year/Month/Day/Hour/month_label.
	TimeColumn string
}

func same(kind Kind, names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Field{Source: n, Canonical: n, Kind: kind}
	}
	return out
}

func concat(groups ...[]Field) []Field {
	var out []Field
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
