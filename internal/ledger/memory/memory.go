package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"designledger/internal/ledger"
)

// Store keeps ledger entries in memory. It backs the worker when no
// spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

var _ ledger.Writer = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) AppendMovement(_ context.Context, e ledger.Entry) (string, error) {
	if e.ItemID == "" {
		return "", errors.New("ledger entry without item id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("mem:%d", len(s.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.entries...)
}
