package census

import (
	"context"
	"sync"

	"evdemand/internal/table"
)

// Memo fetches from F at most once and replays the outcome, error included.
// A Memo lives for one build; nothing is persisted.
type Memo struct {
	F Fetcher

	mu   sync.Mutex
	done bool
	t    *table.Table
	err  error
}

// NewMemo wraps f.
func NewMemo(f Fetcher) *Memo { return &Memo{F: f} }

// Fetch implements Fetcher.
func (m *Memo) Fetch(ctx context.Context) (*table.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.t, m.err = m.F.Fetch(ctx)
		m.done = true
	}
	return m.t, m.err
}
