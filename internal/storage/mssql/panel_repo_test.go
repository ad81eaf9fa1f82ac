package mssql

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"

	"evdemand/internal/storage"
)

type execCall struct {
	query string
	args  []any
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeDB struct {
	calls  []execCall
	err    error
	closed bool
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult(len(args)), nil
}

func (f *fakeDB) Close() error {
	f.closed = true
	return nil
}

func panelSpec() storage.TableSpec {
	return storage.TableSpec{
		Name: "dbo.panel",
		Columns: []storage.ColumnSpec{
			{Name: "state", Type: storage.Text},
			{Name: "Year", Type: storage.Float},
			{Name: "adoption_ratio", Type: storage.Float, Nullable: true},
		},
		Unique: []string{"state", "Year"},
	}
}

func TestBuildCreateSQL(t *testing.T) {
	got, err := buildCreateSQL(panelSpec())
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.panel', N'U') IS NULL BEGIN CREATE TABLE [dbo].[panel] " +
		"([state] NVARCHAR(255) NOT NULL, [Year] FLOAT NOT NULL, [adoption_ratio] FLOAT, UNIQUE ([state], [Year])); END;"
	if got != want {
		t.Fatalf("ddl mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	q, args := buildInsertNotExistsSQL("panel", []string{"state", "Year"}, [][]any{{"CA", 2023.0}, {"NV", 2023.0}}, []string{"state", "Year"})
	want := "INSERT INTO [panel] ([state], [Year]) SELECT v.[state], v.[Year] FROM (VALUES (@p1, @p2), (@p3, @p4)) AS v([state], [Year]) " +
		"WHERE NOT EXISTS (SELECT 1 FROM [panel] t WHERE t.[state] = v.[state] AND t.[Year] = v.[Year])"
	if q != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", q, want)
	}
	if len(args) != 4 || args[2] != "NV" {
		t.Fatalf("args=%v", args)
	}
}

func TestInsertRows_DedupesChunksAndDropsInf(t *testing.T) {
	db := &fakeDB{}
	r := &PanelRepo{db: db}
	spec := panelSpec()

	rows := make([][]any, 0, 1500)
	for i := 0; i < 1500; i++ {
		rows = append(rows, []any{"CA", float64(i), math.Inf(1)})
	}
	rows = append(rows, []any{"CA", 0.0, 1.0}) // duplicate key

	n, err := r.InsertRows(context.Background(), spec, rows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	// 2000/3 = 666 rows per statement
	if len(db.calls) != 3 {
		t.Fatalf("statements=%d want 3", len(db.calls))
	}
	if n != 1500*3 {
		t.Fatalf("affected=%d", n)
	}
	for _, c := range db.calls {
		if !strings.Contains(c.query, "WHERE NOT EXISTS") {
			t.Fatalf("expected NOT EXISTS insert: %s", c.query)
		}
		if len(c.args) > maxParams {
			t.Fatalf("too many params: %d", len(c.args))
		}
		for i := 2; i < len(c.args); i += 3 {
			if c.args[i] != nil {
				t.Fatalf("Inf should be written as NULL, got %v", c.args[i])
			}
		}
	}
}

func TestInsertRows_PropagatesError(t *testing.T) {
	db := &fakeDB{err: errors.New("boom")}
	r := &PanelRepo{db: db}
	if _, err := r.InsertRows(context.Background(), panelSpec(), [][]any{{"CA", 2023.0, nil}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureTableAndClose(t *testing.T) {
	db := &fakeDB{}
	r := &PanelRepo{db: db}
	if err := r.EnsureTable(context.Background(), panelSpec()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(db.calls) != 1 || !strings.HasPrefix(db.calls[0].query, "IF OBJECT_ID") {
		t.Fatalf("calls=%v", db.calls)
	}
	r.Close()
	if !db.closed {
		t.Fatalf("Close did not close db")
	}
}
