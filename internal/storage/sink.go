package storage

import (
	"context"
	"fmt"

	"evdemand/internal/table"
)

// Save ensures the destination table exists and inserts t into it, keyed on
// unique. It returns the number of new rows.
func Save(ctx context.Context, repo PanelRepository, name string, t *table.Table, unique ...string) (int64, error) {
	spec, err := SpecFor(name, t, unique...)
	if err != nil {
		return 0, err
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		return 0, fmt.Errorf("storage: ensure %s: %w", name, err)
	}
	n, err := repo.InsertRows(ctx, spec, Rows(spec, t))
	if err != nil {
		return n, fmt.Errorf("storage: insert %s: %w", name, err)
	}
	return n, nil
}
