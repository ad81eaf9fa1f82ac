package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"evdemand/internal/nullable"
	"evdemand/internal/storage"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

func panelTable() *table.Table {
	t := table.New("panel", "state", "Year", "Month", "month_label", "sessions", "adoption_ratio")
	t.Append(records.Record{
		"state": "CA", "Year": nullable.Of(2023), "Month": nullable.Of(3),
		"month_label": "2023-03", "sessions": nullable.Of(2), "adoption_ratio": nullable.Of(0.5),
	})
	t.Append(records.Record{
		"state": "NV", "Year": nullable.Of(2023), "Month": nullable.Of(3),
		"month_label": "2023-03", "sessions": nullable.Of(1), "adoption_ratio": nullable.Null,
	})
	return t
}

func TestPanelRepo_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "panel.db")

	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	n, err := storage.Save(ctx, repo, "panel", panelTable(), "state", "Year", "Month")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted=%d want 2", n)
	}

	n, err = storage.Save(ctx, repo, "panel", panelTable(), "state", "Year", "Month")
	if err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if n != 0 {
		t.Fatalf("re-run inserted=%d want 0", n)
	}

	db := repo.(*PanelRepo).db
	var (
		count int
		ratio *float64
	)
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "panel"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows=%d want 2", count)
	}
	if err := db.QueryRowContext(ctx, `SELECT "adoption_ratio" FROM "panel" WHERE "state" = 'NV'`).Scan(&ratio); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ratio != nil {
		t.Fatalf("NV ratio=%v want NULL", *ratio)
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	ddl, err := buildCreateTableSQL(storage.TableSpec{
		Name: "panel",
		Columns: []storage.ColumnSpec{
			{Name: "state", Type: storage.Text},
			{Name: "Year", Type: storage.Float},
			{Name: "start", Type: storage.Timestamp, Nullable: true},
		},
		Unique: []string{"state", "Year"},
	})
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	for _, want := range []string{`"state" TEXT NOT NULL`, `"Year" REAL NOT NULL`, `"start" TEXT`, `UNIQUE ("state", "Year")`} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
}

func TestBuildInsertSQL_FormatsTimes(t *testing.T) {
	ts := time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC)
	sql, args := buildInsertSQL("s", []string{"a", "b"}, [][]any{{ts, 1.0}, {nil, 2.0}}, true)
	if sql != `INSERT OR IGNORE INTO "s" ("a", "b") VALUES (?,?), (?,?)` {
		t.Fatalf("sql=%s", sql)
	}
	if args[0] != "2023-03-15T10:00:00Z" || args[2] != nil {
		t.Fatalf("args=%v", args)
	}
}
