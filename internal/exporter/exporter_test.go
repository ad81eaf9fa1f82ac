package exporter

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"evdemand/internal/nullable"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

func panel() *table.Table {
	t := table.New("panel", "state", "Year", "adoption_ratio", "infra_balance_ratio", "start")
	t.Append(records.Record{
		"state":               "CA",
		"Year":                nullable.Of(2023),
		"adoption_ratio":      nullable.Of(0.25),
		"infra_balance_ratio": nullable.Of(math.Inf(1)),
		"start":               time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC),
	})
	t.Append(records.Record{"state": "NV", "Year": nullable.Of(2023), "adoption_ratio": nullable.Null})
	return t
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "", Cell(nullable.Null))
	assert.Equal(t, "2023", Cell(nullable.Of(2023)))
	assert.Equal(t, "0.1", Cell(nullable.Of(0.1)))
	assert.Equal(t, "-inf", Cell(nullable.Of(math.Inf(-1))))
	assert.Equal(t, "", Cell(time.Time{}))
	assert.Equal(t, "7", Cell(7))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, panel()))
	want := "state,Year,adoption_ratio,infra_balance_ratio,start\n" +
		"CA,2023,0.25,inf,2023-03-15 10:00:00\n" +
		"NV,2023,,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVFile_CreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "state_month_agg.csv")
	require.NoError(t, WriteCSVFile(path, panel()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "CA,2023,0.25,inf")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.xlsx")
	require.NoError(t, WriteXLSXFile(path, "", panel()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"state", "Year", "adoption_ratio", "infra_balance_ratio", "start"}, rows[0])
	assert.Equal(t, "CA", rows[1][0])
	assert.Equal(t, "2023", rows[1][1])
	assert.Equal(t, "0.25", rows[1][2])
	assert.Equal(t, "inf", rows[1][3])
	assert.Equal(t, "2023-03-15 10:00:00", rows[1][4])
	assert.Equal(t, []string{"NV", "2023"}, rows[2])
}
