// Package records defines the loosely typed record shared by every stage of
// the build: parser -> normalizer -> aggregators -> merge engine -> exporters.
package records

// Record maps a canonical column name to a cell value.
//
// Cell values are one of:
//   - nil            null (absent, empty or unparseable)
//   - string         categorical values
//   - nullable.Float numeric values
//   - time.Time      parsed timestamps (UTC)
//
// A missing key and a nil value are equivalent for readers.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string value of field, or "" when the value is nil or
// not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}
