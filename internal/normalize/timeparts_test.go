package normalize

import (
	"testing"
	"time"

	"evdemand/internal/table"
	"evdemand/pkg/records"
)

func TestAddTimeParts_Decomposes(t *testing.T) {
	tb := table.New("s", "start_datetime")
	tb.Append(records.Record{"start_datetime": "2023-03-15T10:00:00Z"})
	tb.Append(records.Record{"start_datetime": "2023-03-15T23:30:00-05:00"})
	tb.Append(records.Record{"start_datetime": "garbage"})
	tb.Append(records.Record{"start_datetime": nil})

	AddTimeParts(tb, "start_datetime")

	type want struct {
		y, m, d, h float64
		label      string
	}
	checks := []want{
		{2023, 3, 15, 10, "2023-03"},
		{2023, 3, 16, 4, "2023-03"},
	}
	for i, w := range checks {
		if tb.Float(i, "Year").V != w.y || tb.Float(i, "Month").V != w.m ||
			tb.Float(i, "Day").V != w.d || tb.Float(i, "Hour").V != w.h {
			t.Fatalf("row %d parts=%v", i, tb.Rows[i])
		}
		if tb.Rows[i]["month_label"] != w.label {
			t.Fatalf("row %d label=%v", i, tb.Rows[i]["month_label"])
		}
		ts, ok := tb.Rows[i]["start_datetime"].(time.Time)
		if !ok || ts.Location() != time.UTC {
			t.Fatalf("row %d ts=%v", i, tb.Rows[i]["start_datetime"])
		}
	}
	for i := 2; i < 4; i++ {
		if tb.Float(i, "Year").Valid || tb.Rows[i]["month_label"] != nil || tb.Rows[i]["start_datetime"] != nil {
			t.Fatalf("row %d should be null: %v", i, tb.Rows[i])
		}
	}
}

func TestAddTimeParts_AbsentColumn(t *testing.T) {
	tb := table.New("s", "energy_kwh")
	tb.Append(records.Record{"energy_kwh": "1"})
	AddTimeParts(tb, "start_datetime")
	if len(tb.Columns) != 1 {
		t.Fatalf("columns=%v", tb.Columns)
	}
}

func TestParseTime_Layouts(t *testing.T) {
	want := time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2023-03-15T10:00:00Z",
		"2023-03-15T10:00:00",
		"2023-03-15 10:00:00",
		"2023-03-15 10:00",
		"03/15/2023 10:00",
		"3/15/2023 10:00",
		"2023-03-15T12:00:00+02:00",
	} {
		got, ok := ParseTime(in)
		if !ok || !got.Equal(want) {
			t.Errorf("ParseTime(%q)=%v,%v", in, got, ok)
		}
	}
	if got, ok := ParseTime("2023-03-15"); !ok || got.Day() != 15 || got.Hour() != 0 {
		t.Errorf("date only: %v %v", got, ok)
	}
	if _, ok := ParseTime("15th of March"); ok {
		t.Errorf("expected failure")
	}
}

func TestMonthLabels(t *testing.T) {
	if got := MonthLabel(2023, 3); got != "2023-03" {
		t.Fatalf("MonthLabel=%q", got)
	}
	if got := NiceMonthLabel(2023, 3); got != "Mar, 2023" {
		t.Fatalf("NiceMonthLabel=%q", got)
	}
	if got := NiceMonthLabel(2023, 13); got != "" {
		t.Fatalf("NiceMonthLabel(13)=%q", got)
	}
}
