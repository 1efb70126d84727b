package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"designledger/internal/amqp"
	"designledger/internal/cache"
	"designledger/internal/core"
	"designledger/internal/inventory"
	"designledger/internal/ledger"
)

const (
	seenEventsSize = 10000
	seenEventsTTL  = 24 * time.Hour
)

// TransactionLookup resolves transaction ids to their source for ledger rows.
type TransactionLookup interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
}

// MovementWorker turns item movement events into ledger rows.
type MovementWorker struct {
	transactions TransactionLookup
	ledger       ledger.Writer
	seen         *cache.LRUCache[struct{}]
}

// NewMovementWorker builds a worker. transactions may be nil, in which case
// rows carry ids only.
func NewMovementWorker(transactions TransactionLookup, w ledger.Writer) *MovementWorker {
	return &MovementWorker{
		transactions: transactions,
		ledger:       w,
		seen:         cache.NewLRUCache[struct{}](seenEventsSize, seenEventsTTL),
	}
}

// HandleItemMoved appends one ledger row per event. Redelivered events that
// were already written are skipped.
func (w *MovementWorker) HandleItemMoved(ctx context.Context, msg *amqp.ItemMovedMessage) error {
	if msg.EventID != "" {
		if _, dup := w.seen.Get(msg.EventID); dup {
			slog.InfoContext(ctx, "Skipping duplicate movement event", "event_id", msg.EventID)
			return nil
		}
	}

	slog.InfoContext(ctx, "Processing movement event",
		"event_id", msg.EventID,
		"item_id", msg.ItemID,
		"kind", msg.Kind)

	fromSource, err := w.source(ctx, msg.FromTransactionID)
	if err != nil {
		return err
	}
	toSource, err := w.source(ctx, msg.ToTransactionID)
	if err != nil {
		return err
	}

	entry := ledger.Entry{
		EventID:         msg.EventID,
		Kind:            msg.Kind,
		ItemID:          msg.ItemID,
		Description:     msg.Description,
		FromTransaction: msg.FromTransactionID,
		FromSource:      fromSource,
		ToTransaction:   msg.ToTransactionID,
		ToSource:        toSource,
		ToProjectID:     msg.ToProjectID,
		MovedAt:         msg.MovedAt,
	}
	if entry.MovedAt.IsZero() {
		entry.MovedAt = msg.Timestamp
	}

	ref, err := w.ledger.AppendMovement(ctx, entry)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	if msg.EventID != "" {
		w.seen.Set(msg.EventID, struct{}{})
	}

	slog.InfoContext(ctx, "Movement recorded in ledger",
		"event_id", msg.EventID,
		"item_id", msg.ItemID,
		"ledger_ref", ref)
	return nil
}

// source returns the transaction's source, or "" when it is unknown to this
// process. Storage failures are returned so the event is retried.
func (w *MovementWorker) source(ctx context.Context, transactionID string) (string, error) {
	if transactionID == "" || w.transactions == nil {
		return "", nil
	}
	tx, err := w.transactions.GetTransaction(ctx, transactionID)
	if errors.Is(err, inventory.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction not found for ledger row", "transaction_id", transactionID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	return tx.Source, nil
}
