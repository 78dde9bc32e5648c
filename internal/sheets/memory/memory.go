package memory

import (
	"context"
	"fmt"
	"sync"

	ports "ledger/internal/sheets"
)

// Store keeps exported rows in memory. It stands in for a spreadsheet when
// none is configured.
type Store struct {
	mu   sync.Mutex
	rows []ports.Row
}

var (
	_ ports.EventWriter = (*Store)(nil)
	_ ports.RowLister   = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, r ports.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListRows returns a copy of the stored rows in append order.
func (s *Store) ListRows(_ context.Context) ([]ports.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Row(nil), s.rows...), nil
}
