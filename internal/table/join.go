package table

import (
	"fmt"
	"strings"
	"time"

	"evdemand/internal/nullable"
	"evdemand/pkg/records"
)

// JoinKey pairs a left column with the right column it must equal.
type JoinKey struct {
	Left  string
	Right string
}

// On is shorthand for join keys whose column name is the same on both sides.
func On(columns ...string) []JoinKey {
	out := make([]JoinKey, len(columns))
	for i, c := range columns {
		out[i] = JoinKey{Left: c, Right: c}
	}
	return out
}

// LeftJoin returns a new table with one row per left row, extended with the
// columns of the first matching right row.
//
// Semantics:
//   - Row identity: the result has exactly left.Len() rows in left order. A
//     right table with several rows per key does not fan out; the first
//     match wins.
//   - Unmatched left rows (including rows whose key holds a null) get nil
//     for every right column.
//   - Right key columns are dropped. A right column whose name already
//     exists on the left is skipped; the left value is kept.
//
// Errors:
//   - Returns an error if a key column is missing on either side.
func LeftJoin(left, right *Table, on []JoinKey) (*Table, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("left join: nil table")
	}
	if len(on) == 0 {
		return nil, fmt.Errorf("left join %s<-%s: no join keys", left.Name, right.Name)
	}
	for _, k := range on {
		if !left.Has(k.Left) {
			return nil, fmt.Errorf("left join %s<-%s: left key %q missing", left.Name, right.Name, k.Left)
		}
		if !right.Has(k.Right) {
			return nil, fmt.Errorf("left join %s<-%s: right key %q missing", left.Name, right.Name, k.Right)
		}
	}

	rightKeys := make(map[string]struct{}, len(on))
	for _, k := range on {
		rightKeys[k.Right] = struct{}{}
	}
	var carry []string
	for _, c := range right.Columns {
		if _, isKey := rightKeys[c]; isKey || left.Has(c) {
			continue
		}
		carry = append(carry, c)
	}

	index := make(map[string]records.Record, len(right.Rows))
	for _, r := range right.Rows {
		key, ok := compositeKey(r, on, false)
		if !ok {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = r
		}
	}

	out := &Table{
		Name:    left.Name,
		Columns: append(append([]string(nil), left.Columns...), carry...),
		Rows:    make([]records.Record, 0, len(left.Rows)),
	}
	for _, l := range left.Rows {
		row := l.Clone()
		var match records.Record
		if key, ok := compositeKey(l, on, true); ok {
			match = index[key]
		}
		for _, c := range carry {
			if match == nil {
				row[c] = nil
				continue
			}
			row[c] = match[c]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func compositeKey(r records.Record, on []JoinKey, leftSide bool) (string, bool) {
	var b strings.Builder
	for i, k := range on {
		col := k.Right
		if leftSide {
			col = k.Left
		}
		s, ok := KeyString(r[col])
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(s)
	}
	return b.String(), true
}

// KeyString renders a cell value as a grouping/join key. Null values (nil,
// empty strings, null Floats) have no key.
func KeyString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case nullable.Float:
		if !t.Valid {
			return "", false
		}
		return t.String(), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(t), true
	}
}
