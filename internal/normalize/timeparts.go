package normalize

import (
	"fmt"
	"strings"
	"time"

	"evdemand/internal/nullable"
	"evdemand/internal/schema"
	"evdemand/internal/table"
)

// zoned layouts carry an offset; the instant is converted to UTC.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05 -0700 MST",
}

// naive layouts have no zone and are read as UTC wall-clock time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04",
	"1/2/2006",
}

// ParseTime parses s permissively. Zoned inputs are normalised to UTC;
// zone-less inputs are taken as UTC. The returned time always has
// Location() == time.UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthLabel is the canonical "YYYY-MM" period key. Every source with a time
// dimension must format months through this function.
func MonthLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// NiceMonthLabel renders a human-readable period such as "Mar, 2023".
// It returns "" for an out-of-range month.
func NiceMonthLabel(year, month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("Jan, 2006")
}

// AddTimeParts decomposes column into Year, Month, Day, Hour and month_label.
//
// The column itself is replaced with the parsed time.Time (nil when
// unparseable). Unparseable values yield null parts; the row is kept.
// When column is absent the table is returned unchanged.
func AddTimeParts(t *table.Table, column string) *table.Table {
	if t == nil || !t.Has(column) {
		return t
	}
	for _, c := range []string{schema.ColYear, schema.ColMonth, schema.ColDay, schema.ColHour, schema.ColMonthLabel} {
		t.AddColumn(c)
	}
	for _, r := range t.Rows {
		var (
			ts time.Time
			ok bool
		)
		switch v := r[column].(type) {
		case time.Time:
			ts, ok = v.UTC(), !v.IsZero()
		case string:
			ts, ok = ParseTime(v)
		}
		if !ok {
			r[column] = nil
			r[schema.ColYear] = nullable.Null
			r[schema.ColMonth] = nullable.Null
			r[schema.ColDay] = nullable.Null
			r[schema.ColHour] = nullable.Null
			r[schema.ColMonthLabel] = nil
			continue
		}
		r[column] = ts
		r[schema.ColYear] = nullable.Of(float64(ts.Year()))
		r[schema.ColMonth] = nullable.Of(float64(ts.Month()))
		r[schema.ColDay] = nullable.Of(float64(ts.Day()))
		r[schema.ColHour] = nullable.Of(float64(ts.Hour()))
		r[schema.ColMonthLabel] = MonthLabel(ts.Year(), int(ts.Month()))
	}
	return t
}
