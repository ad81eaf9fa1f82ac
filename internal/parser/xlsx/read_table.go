// Package xlsx loads workbook extracts (the AFDC registration download is
// published as .xlsx) into presence-gated tables.
package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	pcsv "evdemand/internal/parser/csv"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

// ReadFile reads the first sheet whose first non-empty row looks like a
// header (or sheet, when set) of the workbook at path.
//
// Edge cases:
//   - Leading blank or title rows before the header are skipped.
//   - Header names follow the CSV reader's normalisation.
//   - Empty cells become nil.
//
// Errors:
//   - Open failures, a missing sheet, a sheet without rows, ctx cancellation.
func ReadFile(ctx context.Context, path, name, sheet string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	hdrAt := headerRow(rows)
	if hdrAt < 0 {
		return nil, fmt.Errorf("read sheet %q: no header row", sheet)
	}

	t := table.New(name)
	var colIx []int
	for i, h := range rows[hdrAt] {
		h = pcsv.HeaderName(h)
		if h == "" || t.Has(h) {
			continue
		}
		t.AddColumn(h)
		colIx = append(colIx, i)
	}

	for _, row := range rows[hdrAt+1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(row) {
			continue
		}
		rec := make(records.Record, len(t.Columns))
		for c, si := range colIx {
			var v any
			if si < len(row) {
				if s := strings.TrimSpace(row[si]); s != "" {
					v = s
				}
			}
			rec[t.Columns[c]] = v
		}
		t.Append(rec)
	}
	return t, nil
}

// headerRow returns the index of the first row with at least two non-empty
// cells, or -1.
func headerRow(rows [][]string) int {
	for i, r := range rows {
		n := 0
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				n++
			}
		}
		if n >= 2 {
			return i
		}
	}
	return -1
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
