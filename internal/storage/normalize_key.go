package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a key cell to a canonical string so that in-memory
// dedupe treats 2023 and 2023.0, or " CA" and "CA", as the same key.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeRows keeps the first row per unique key (columns at keyIx).
func DedupeRows(rows [][]any, keyIx []int) [][]any {
	if len(keyIx) == 0 {
		return rows
	}
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for i, ix := range keyIx {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(NormalizeKey(row[ix]))
		}
		k := b.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// KeyIndices returns the positions of spec.Unique within spec.Columns.
func KeyIndices(spec TableSpec) []int {
	return indicesOf(spec.ColumnNames(), spec.Unique)
}
