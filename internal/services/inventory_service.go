package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"designledger/internal/amqp"
	"designledger/internal/cache"
	"designledger/internal/core"
	"designledger/internal/inventory"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultCacheSize = 500
	DefaultCacheTTL  = 2 * time.Minute

	dashboardConcurrency = 4
)

// Store is the full set of inventory ports the service writes through.
type Store interface {
	inventory.ProjectReader
	inventory.ProjectWriter
	inventory.TransactionReader
	inventory.TransactionWriter
	inventory.ItemReader
	inventory.ItemWriter
}

// transactionCounter is implemented by stores that can count in one query.
type transactionCounter interface {
	CountTransactionsByProject(ctx context.Context) (map[string]int, error)
}

// MovementPublisher sends item movement events to the ledger worker.
type MovementPublisher interface {
	PublishItemMoved(ctx context.Context, msg *amqp.ItemMovedMessage) error
}

// Recorder receives movement counters.
type Recorder interface {
	ItemMoved(kind string)
	PublishFailed()
}

// Options tunes the service. Zero values pick defaults.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Observer  cache.Observer
	Recorder  Recorder
}

type (
	ProjectSummary struct {
		Project          core.Project
		TransactionCount int
	}

	Dashboard struct {
		Projects  []ProjectSummary
		Inventory []core.Transaction
	}

	ProjectView struct {
		Project      core.Project
		Transactions []core.Transaction
	}

	// TransactionView is one transaction with its items split by association.
	TransactionView struct {
		Transaction   core.Transaction
		Project       *core.Project
		InTransaction []core.TransactionItem
		MovedOut      []core.TransactionItem
	}
)

// InventoryService orchestrates inventory operations across storage, the
// item view cache and AMQP.
type InventoryService struct {
	store     Store
	publisher MovementPublisher
	recorder  Recorder
	items     *cache.Loader[[]core.TransactionItem]
}

// NewInventoryService wires the service. publisher may be nil, in which case
// movements are not published.
func NewInventoryService(store Store, publisher MovementPublisher, opts Options) *InventoryService {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &InventoryService{
		store:     store,
		publisher: publisher,
		recorder:  opts.Recorder,
		items:     cache.NewLoader("transaction_items", cache.NewLRUCache[[]core.TransactionItem](size, ttl), opts.Observer),
	}
}

// ItemCache exposes the view cache for periodic cleanup.
func (s *InventoryService) ItemCache() cache.Cleaner {
	return s.items
}

// Dashboard loads projects, their transaction counts and the business
// inventory transactions concurrently.
func (s *InventoryService) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		projects []core.Project
		stock    []core.Transaction
		counts   map[string]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		projects, err = s.store.ListProjects(gctx)
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		counts, err = s.countTransactions(gctx, projects)
		return err
	})
	g.Go(func() error {
		var err error
		stock, err = s.store.ListTransactions(gctx, nil)
		if err != nil {
			return fmt.Errorf("list inventory transactions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Inventory: stock, Projects: make([]ProjectSummary, 0, len(projects))}
	for _, p := range projects {
		d.Projects = append(d.Projects, ProjectSummary{Project: p, TransactionCount: counts[p.ID]})
	}
	return d, nil
}

func (s *InventoryService) countTransactions(ctx context.Context, projects []core.Project) (map[string]int, error) {
	if c, ok := s.store.(transactionCounter); ok {
		counts, err := c.CountTransactionsByProject(ctx)
		if err != nil {
			return nil, fmt.Errorf("count transactions: %w", err)
		}
		return counts, nil
	}

	results := make([]int, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardConcurrency)
	for i, p := range projects {
		id := p.ID
		g.Go(func() error {
			txs, err := s.store.ListTransactions(gctx, &id)
			if err != nil {
				return fmt.Errorf("list transactions for %s: %w", id, err)
			}
			results[i] = len(txs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(projects))
	for i, p := range projects {
		counts[p.ID] = results[i]
	}
	return counts, nil
}

func (s *InventoryService) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	slog.InfoContext(ctx, "Project created", "project_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *InventoryService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *InventoryService) Project(ctx context.Context, id string) (ProjectView, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}
	txs, err := s.store.ListTransactions(ctx, &p.ID)
	if err != nil {
		return ProjectView{}, fmt.Errorf("list transactions: %w", err)
	}
	return ProjectView{Project: p, Transactions: txs}, nil
}

// InventoryTransactions lists business inventory transactions.
func (s *InventoryService) InventoryTransactions(ctx context.Context) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, nil)
}

func (s *InventoryService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ProjectID != nil {
		if _, err := s.store.GetProject(ctx, *tx.ProjectID); err != nil {
			return core.Transaction{}, err
		}
	}
	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", created.ID,
		"project_id", core.Deref(created.ProjectID),
		"amount", created.Amount.String())
	return created, nil
}

func (s *InventoryService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *InventoryService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	updated, err := s.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.items.Invalidate(updated.ID)
	return updated, nil
}

func (s *InventoryService) AddItem(ctx context.Context, transactionID string, it core.Item) (core.Item, error) {
	created, err := s.store.AddItem(ctx, transactionID, it)
	if err != nil {
		return core.Item{}, fmt.Errorf("add item: %w", err)
	}
	s.items.Invalidate(transactionID)
	slog.InfoContext(ctx, "Item added",
		"item_id", created.ID,
		"transaction_id", transactionID)
	return created, nil
}

// TransactionItems returns the resolved items of a transaction, cached.
func (s *InventoryService) TransactionItems(ctx context.Context, transactionID string) ([]core.TransactionItem, error) {
	return s.items.Get(ctx, transactionID, func(ctx context.Context) ([]core.TransactionItem, error) {
		return s.store.ListTransactionItems(ctx, transactionID)
	})
}

// TransactionView loads a transaction with its items split into the ones
// still in it and the ones moved out.
func (s *InventoryService) TransactionView(ctx context.Context, transactionID string) (TransactionView, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return TransactionView{}, err
	}
	view := TransactionView{Transaction: tx}
	if tx.ProjectID != nil {
		p, err := s.store.GetProject(ctx, *tx.ProjectID)
		switch {
		case err == nil:
			view.Project = &p
		case errors.Is(err, inventory.ErrNotFound):
			slog.WarnContext(ctx, "Transaction references missing project",
				"transaction_id", tx.ID,
				"project_id", *tx.ProjectID)
		default:
			return TransactionView{}, err
		}
	}

	items, err := s.TransactionItems(ctx, transactionID)
	if err != nil {
		return TransactionView{}, fmt.Errorf("list items: %w", err)
	}
	view.InTransaction, view.MovedOut = core.PartitionByAssociation(items)
	return view, nil
}

// MoveTargets lists the transactions an item viewed in tx can move to: the
// project's other transactions plus business inventory, or every transaction
// when tx is itself in business inventory.
func (s *InventoryService) MoveTargets(ctx context.Context, tx core.Transaction) ([]core.Transaction, error) {
	scopes := []*string{nil}
	if tx.ProjectID != nil {
		scopes = append(scopes, tx.ProjectID)
	} else {
		projects, err := s.store.ListProjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		for _, p := range projects {
			scopes = append(scopes, &p.ID)
		}
	}

	lists := make([][]core.Transaction, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardConcurrency)
	for i, scope := range scopes {
		g.Go(func() error {
			txs, err := s.store.ListTransactions(gctx, scope)
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			lists[i] = txs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var targets []core.Transaction
	for _, txs := range lists {
		for _, t := range txs {
			if t.ID != tx.ID {
				targets = append(targets, t)
			}
		}
	}
	return targets, nil
}

// MoveItem moves an item to another transaction and publishes the movement.
func (s *InventoryService) MoveItem(ctx context.Context, itemID, toTransactionID string) (core.Movement, error) {
	m, err := s.store.MoveItem(ctx, itemID, toTransactionID)
	if err != nil {
		return core.Movement{}, err
	}
	s.afterMovement(ctx, m, amqp.KindMoved)
	return m, nil
}

// ReturnItemToInventory sends an item back to business inventory.
func (s *InventoryService) ReturnItemToInventory(ctx context.Context, itemID string) (core.Movement, error) {
	m, err := s.store.ReturnItemToInventory(ctx, itemID)
	if err != nil {
		return core.Movement{}, err
	}
	s.afterMovement(ctx, m, amqp.KindReturned)
	return m, nil
}

func (s *InventoryService) afterMovement(ctx context.Context, m core.Movement, kind string) {
	s.items.Purge()
	if s.recorder != nil {
		s.recorder.ItemMoved(kind)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping movement event", "item_id", m.ItemID)
		return
	}

	description := ""
	if it, err := s.store.GetItem(ctx, m.ItemID); err == nil {
		description = it.Description
	}
	if err := s.publisher.PublishItemMoved(ctx, amqp.NewItemMovedMessage(m, description)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish movement event",
			"item_id", m.ItemID,
			"kind", kind,
			"error", err)
		if s.recorder != nil {
			s.recorder.PublishFailed()
		}
	}
}

// Close releases the store and publisher when they hold resources.
func (s *InventoryService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close inventory service: %w", errors.Join(errs...))
	}
	return nil
}
