// Package csv loads delimited extracts into presence-gated tables.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"evdemand/internal/table"
	"evdemand/pkg/records"
)

// Options controls how an extract is read.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// LazyQuotes relaxes quote handling for vendor extracts with stray quotes.
	LazyQuotes bool
}

// ReadFile opens path and reads it with ReadTable.
func ReadFile(ctx context.Context, path, name string, opt Options, onErr func(line int, err error)) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return ReadTable(ctx, f, name, opt, onErr)
}

// ReadTable reads a headered CSV stream into a table named name.
//
// When to use:
//   - Loading a whole source extract ahead of normalisation. The build is not
//     streaming; every stage needs the full table.
//
// Edge cases:
//   - A UTF-8 or UTF-16 byte-order mark is honoured and stripped.
//   - Header names are trimmed and lower-cased, nothing more: "Energy KWh"
//     stays "energy kwh". Duplicate names keep the first occurrence.
//   - Empty cells (after trimming) become nil. Short rows pad with nil.
//   - Malformed records are reported to onErr and skipped.
//
// Errors:
//   - Header read failures and ctx cancellation. src is always closed.
func ReadTable(ctx context.Context, src io.ReadCloser, name string, opt Options, onErr func(line int, err error)) (*table.Table, error) {
	defer src.Close()

	r := transform.NewReader(src, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(r)
	cr.Comma = ','
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("read header: empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := table.New(name)
	colIx := make([]int, 0, len(hdr))
	for i, h := range hdr {
		h = HeaderName(h)
		if h == "" || t.Has(h) {
			continue
		}
		t.AddColumn(h)
		colIx = append(colIx, i)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := make(records.Record, len(t.Columns))
		for c, si := range colIx {
			col := t.Columns[c]
			if si >= len(rec) {
				row[col] = nil
				continue
			}
			v := strings.TrimSpace(rec[si])
			if v == "" {
				row[col] = nil
			} else {
				row[col] = v
			}
		}
		t.Append(row)
	}
}

// HeaderName normalises a raw header cell: BOM stripped, trimmed,
// lower-cased. Inner whitespace is significant.
func HeaderName(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
}
