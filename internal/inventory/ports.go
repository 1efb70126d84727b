package inventory

import (
	"context"
	"errors"

	"designledger/internal/core"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyInInventory = errors.New("item already in business inventory")
	ErrSameTransaction    = errors.New("item already belongs to this transaction")
)

// Ports for outbound adapters.
type (
	ProjectReader interface {
		ListProjects(ctx context.Context) ([]core.Project, error)
		GetProject(ctx context.Context, id string) (core.Project, error)
	}

	ProjectWriter interface {
		CreateProject(ctx context.Context, p core.Project) (core.Project, error)
	}

	// TransactionReader lists transactions. A nil projectID lists business
	// inventory transactions.
	TransactionReader interface {
		ListTransactions(ctx context.Context, projectID *string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	}

	TransactionWriter interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	}

	// ItemReader returns items with their association to a transaction
	// already resolved.
	ItemReader interface {
		ListTransactionItems(ctx context.Context, transactionID string) ([]core.TransactionItem, error)
		GetItem(ctx context.Context, id string) (core.Item, error)
	}

	// ItemWriter mutates item placement. Implementations record a
	// core.Movement for every change of association.
	ItemWriter interface {
		AddItem(ctx context.Context, transactionID string, it core.Item) (core.Item, error)
		MoveItem(ctx context.Context, itemID, toTransactionID string) (core.Movement, error)
		ReturnItemToInventory(ctx context.Context, itemID string) (core.Movement, error)
	}
)
