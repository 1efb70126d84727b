package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"designledger/internal/core"
	"designledger/internal/inventory"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ inventory.ProjectReader     = (*SQLiteRepository)(nil)
	_ inventory.ProjectWriter     = (*SQLiteRepository)(nil)
	_ inventory.TransactionReader = (*SQLiteRepository)(nil)
	_ inventory.TransactionWriter = (*SQLiteRepository)(nil)
	_ inventory.ItemReader        = (*SQLiteRepository)(nil)
	_ inventory.ItemWriter        = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent moves.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by /readyz.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, inventory.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// withTx runs fn inside a database transaction, rolling back on error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	if p.ID == "" {
		p.ID = core.NewID()
	}
	p.CreatedAt = r.now()
	if err := r.queries.InsertProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	slog.InfoContext(ctx, "Project saved to SQLite", "project_id", p.ID, "name", p.Name)
	return p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	projects, err := r.queries.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	p, err := r.queries.GetProject(ctx, id)
	if err != nil {
		return core.Project{}, notFound("project", id, err)
	}
	return p, nil
}

// CountTransactionsByProject returns transaction counts keyed by project id.
// Business inventory transactions are counted under the empty key.
func (r *SQLiteRepository) CountTransactionsByProject(ctx context.Context) (map[string]int, error) {
	counts, err := r.queries.CountTransactionsByProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	return counts, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ProjectID != nil {
		if _, err := r.GetProject(ctx, *tx.ProjectID); err != nil {
			return core.Transaction{}, err
		}
	}
	if tx.ID == "" {
		tx.ID = core.NewID()
	}
	tx.CreatedAt = r.now()
	tx.UpdatedAt = tx.CreatedAt
	if err := r.queries.InsertTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"transaction_id", tx.ID,
		"source", tx.Source,
		"amount_cents", tx.Amount.Cents,
		"date", tx.Date.String())
	return tx, nil
}

// UpdateTransaction edits the descriptive fields. Project and creation time
// are kept from the stored row.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	existing, err := r.GetTransaction(ctx, tx.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ProjectID = existing.ProjectID
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = r.now()
	n, err := r.queries.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, inventory.ErrNotFound)
	}
	return tx, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, projectID *string) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := r.queries.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, notFound("transaction", id, err)
	}
	return tx, nil
}

func (r *SQLiteRepository) AddItem(ctx context.Context, transactionID string, it core.Item) (core.Item, error) {
	if err := it.Validate(); err != nil {
		return core.Item{}, err
	}
	tx, err := r.GetTransaction(ctx, transactionID)
	if err != nil {
		return core.Item{}, err
	}
	if it.ID == "" {
		it.ID = core.NewID()
	}
	it.TransactionID = &tx.ID
	it.LegacyTransactionID = &tx.ID
	it.PriorProjectTransactionID = nil
	it.ProjectID = tx.ProjectID
	it.UpdatedAt = r.now()
	if err := r.queries.InsertItem(ctx, it); err != nil {
		return core.Item{}, fmt.Errorf("add item: %w", err)
	}
	return it, nil
}

func (r *SQLiteRepository) GetItem(ctx context.Context, id string) (core.Item, error) {
	it, err := r.queries.GetItem(ctx, id)
	if err != nil {
		return core.Item{}, notFound("item", id, err)
	}
	return it, nil
}

// ListTransactionItems loads every item referencing transactionID together
// with its movement history and resolves each association once.
func (r *SQLiteRepository) ListTransactionItems(ctx context.Context, transactionID string) ([]core.TransactionItem, error) {
	if _, err := r.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	items, err := r.queries.ListItemsReferencing(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction items: %w", err)
	}
	histories, err := r.queries.ListMovementsReferencing(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list item movements: %w", err)
	}
	return core.ResolveTransactionItems(items, histories, transactionID), nil
}

func (r *SQLiteRepository) MoveItem(ctx context.Context, itemID, toTransactionID string) (core.Movement, error) {
	var m core.Movement
	err := r.withTx(ctx, func(q *Queries) error {
		it, err := q.GetItem(ctx, itemID)
		if err != nil {
			return notFound("item", itemID, err)
		}
		target, err := q.GetTransaction(ctx, toTransactionID)
		if err != nil {
			return notFound("transaction", toTransactionID, err)
		}
		m, err = inventory.PlanMove(&it, target, r.now())
		if err != nil {
			return err
		}
		if err := q.UpdateItemPlacement(ctx, it); err != nil {
			return fmt.Errorf("update item placement: %w", err)
		}
		if err := q.InsertMovement(ctx, m); err != nil {
			return fmt.Errorf("record movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}
	slog.InfoContext(ctx, "Item moved",
		"item_id", itemID,
		"from_transaction_id", m.FromTransactionID,
		"to_transaction_id", toTransactionID)
	return m, nil
}

func (r *SQLiteRepository) ReturnItemToInventory(ctx context.Context, itemID string) (core.Movement, error) {
	var m core.Movement
	err := r.withTx(ctx, func(q *Queries) error {
		it, err := q.GetItem(ctx, itemID)
		if err != nil {
			return notFound("item", itemID, err)
		}
		m, err = inventory.PlanReturn(&it, r.now())
		if err != nil {
			return err
		}
		if err := q.UpdateItemPlacement(ctx, it); err != nil {
			return fmt.Errorf("update item placement: %w", err)
		}
		if err := q.InsertMovement(ctx, m); err != nil {
			return fmt.Errorf("record movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}
	slog.InfoContext(ctx, "Item returned to business inventory",
		"item_id", itemID,
		"from_transaction_id", m.FromTransactionID)
	return m, nil
}
