package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"designledger/internal/core"
	"designledger/internal/inventory"
)

// Store keeps projects, transactions and items in process memory.
type Store struct {
	mu           sync.Mutex
	projects     map[string]core.Project
	transactions map[string]core.Transaction
	items        map[string]core.Item
	itemOrder    []string
	movements    map[string][]core.Movement
	now          func() time.Time
}

var (
	_ inventory.ProjectReader     = (*Store)(nil)
	_ inventory.ProjectWriter     = (*Store)(nil)
	_ inventory.TransactionReader = (*Store)(nil)
	_ inventory.TransactionWriter = (*Store)(nil)
	_ inventory.ItemReader        = (*Store)(nil)
	_ inventory.ItemWriter        = (*Store)(nil)
)

func New() *Store {
	return &Store{
		projects:     make(map[string]core.Project),
		transactions: make(map[string]core.Transaction),
		items:        make(map[string]core.Item),
		movements:    make(map[string][]core.Movement),
		now:          time.Now,
	}
}

func (s *Store) CreateProject(_ context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = core.NewID()
	}
	p.CreatedAt = s.now()
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, fmt.Errorf("project %s: %w", id, inventory.ErrNotFound)
	}
	return p, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ProjectID != nil {
		if _, ok := s.projects[*tx.ProjectID]; !ok {
			return core.Transaction{}, fmt.Errorf("project %s: %w", *tx.ProjectID, inventory.ErrNotFound)
		}
	}
	if tx.ID == "" {
		tx.ID = core.NewID()
	}
	tx.CreatedAt = s.now()
	tx.UpdatedAt = tx.CreatedAt
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[tx.ID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, inventory.ErrNotFound)
	}
	tx.ProjectID = existing.ProjectID
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = s.now()
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, projectID *string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.transactions {
		if core.Deref(tx.ProjectID) == core.Deref(projectID) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date.Time)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, inventory.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) AddItem(_ context.Context, transactionID string, it core.Item) (core.Item, error) {
	if err := it.Validate(); err != nil {
		return core.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return core.Item{}, fmt.Errorf("transaction %s: %w", transactionID, inventory.ErrNotFound)
	}
	if it.ID == "" {
		it.ID = core.NewID()
	}
	it.TransactionID = &tx.ID
	it.LegacyTransactionID = &tx.ID
	it.PriorProjectTransactionID = nil
	it.ProjectID = tx.ProjectID
	it.UpdatedAt = s.now()
	s.items[it.ID] = it
	s.itemOrder = append(s.itemOrder, it.ID)
	return it, nil
}

func (s *Store) GetItem(_ context.Context, id string) (core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return core.Item{}, fmt.Errorf("item %s: %w", id, inventory.ErrNotFound)
	}
	return it, nil
}

// ListTransactionItems returns items in insertion order.
func (s *Store) ListTransactionItems(_ context.Context, transactionID string) ([]core.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[transactionID]; !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, inventory.ErrNotFound)
	}
	var items []core.Item
	histories := make(map[string][]core.Movement)
	for _, id := range s.itemOrder {
		it := s.items[id]
		history := s.movements[id]
		if !it.References(transactionID, history) {
			continue
		}
		items = append(items, it)
		histories[id] = append([]core.Movement(nil), history...)
	}
	return core.ResolveTransactionItems(items, histories, transactionID), nil
}

func (s *Store) MoveItem(_ context.Context, itemID, toTransactionID string) (core.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return core.Movement{}, fmt.Errorf("item %s: %w", itemID, inventory.ErrNotFound)
	}
	target, ok := s.transactions[toTransactionID]
	if !ok {
		return core.Movement{}, fmt.Errorf("transaction %s: %w", toTransactionID, inventory.ErrNotFound)
	}
	m, err := inventory.PlanMove(&it, target, s.now())
	if err != nil {
		return core.Movement{}, err
	}
	s.items[itemID] = it
	s.movements[itemID] = append(s.movements[itemID], m)
	return m, nil
}

func (s *Store) ReturnItemToInventory(_ context.Context, itemID string) (core.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return core.Movement{}, fmt.Errorf("item %s: %w", itemID, inventory.ErrNotFound)
	}
	m, err := inventory.PlanReturn(&it, s.now())
	if err != nil {
		return core.Movement{}, err
	}
	s.items[itemID] = it
	s.movements[itemID] = append(s.movements[itemID], m)
	return m, nil
}
