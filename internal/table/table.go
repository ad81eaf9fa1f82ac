// Package table holds the in-memory tabular collection that flows between
// build stages, plus the left join used by the merge engine.
//
// Tables are presence-gated: Columns lists exactly the fields a source
// actually supplied. Readers must check Has before relying on a column.
package table

import (
	"evdemand/internal/nullable"
	"evdemand/pkg/records"
)

// Table is an ordered sequence of records with a declared column set.
type Table struct {
	Name    string
	Columns []string
	Rows    []records.Record
}

// New returns an empty table with the given columns.
func New(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether column is part of the table schema.
func (t *Table) Has(column string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// HasAll reports whether every column is present.
func (t *Table) HasAll(columns ...string) bool {
	for _, c := range columns {
		if !t.Has(c) {
			return false
		}
	}
	return true
}

// AddColumn appends column to the schema if it is not already present.
// Existing rows are not touched; a missing key reads as nil.
func (t *Table) AddColumn(column string) {
	if !t.Has(column) {
		t.Columns = append(t.Columns, column)
	}
}

// Append adds r to the table.
func (t *Table) Append(r records.Record) {
	t.Rows = append(t.Rows, r)
}

// Float returns the numeric value of column in row i.
func (t *Table) Float(i int, column string) nullable.Float {
	return nullable.FromAny(t.Rows[i][column])
}

// Select returns a new table holding only the listed columns that t has,
// in the order given. Rows are copied; t is not modified.
func (t *Table) Select(columns ...string) *Table {
	out := New(t.Name)
	for _, c := range columns {
		if t.Has(c) {
			out.AddColumn(c)
		}
	}
	out.Rows = make([]records.Record, len(t.Rows))
	for i, r := range t.Rows {
		rec := make(records.Record, len(out.Columns))
		for _, c := range out.Columns {
			rec[c] = r[c]
		}
		out.Rows[i] = rec
	}
	return out
}
