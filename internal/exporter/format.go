// Package exporter writes tables to flat files: CSV for interim and panel
// outputs, XLSX for analysts who want the panel as a workbook.
package exporter

import (
	"fmt"
	"time"

	"evdemand/internal/nullable"
)

// TimeLayout renders timestamp cells. Values are UTC and written zone-less.
const TimeLayout = "2006-01-02 15:04:05"

// Cell renders one cell value for flat-file output. Nulls render as "".
func Cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case nullable.Float:
		return t.String()
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(TimeLayout)
	default:
		return fmt.Sprint(t)
	}
}
