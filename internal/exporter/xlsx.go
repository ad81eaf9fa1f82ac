package exporter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"evdemand/internal/nullable"
	"evdemand/internal/table"
)

// DefaultSheet is the worksheet name used when none is given.
const DefaultSheet = "panel"

// WriteXLSXFile writes t to a single-sheet workbook at path.
//
// Numeric cells are stored as numbers. Infinite ratios have no spreadsheet
// representation and are written as the text "inf"/"-inf"; nulls are blank.
func WriteXLSXFile(path, sheet string, t *table.Table) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}

	for n, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = xlsxValue(r[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return fmt.Errorf("export %s: %w", t.Name, err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("export %s: %w", t.Name, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}
	return nil
}

func xlsxValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case nullable.Float:
		if !t.Valid {
			return nil
		}
		if math.IsInf(t.V, 0) {
			return t.String()
		}
		return t.V
	case time.Time:
		return Cell(t)
	default:
		return Cell(t)
	}
}
