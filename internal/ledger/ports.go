// Package ledger records item movements in an append-only external ledger.
package ledger

import (
	"context"
	"time"
)

// Entry is one ledger row describing a movement.
type Entry struct {
	EventID         string
	Kind            string
	ItemID          string
	Description     string
	FromTransaction string
	FromSource      string
	ToTransaction   string
	ToSource        string
	ToProjectID     string
	MovedAt         time.Time
}

// Header names the ledger columns in Row order.
var Header = []any{
	"Moved at", "Kind", "Item", "Description",
	"From transaction", "From source", "To transaction", "To source", "To project", "Event",
}

// Row renders the entry as spreadsheet cells. Business inventory shows as
// the literal destination "inventory".
func (e Entry) Row() []any {
	to, toSource := e.ToTransaction, e.ToSource
	if to == "" {
		to, toSource = "inventory", "Business inventory"
	}
	return []any{
		e.MovedAt.UTC().Format(time.RFC3339),
		e.Kind,
		e.ItemID,
		e.Description,
		e.FromTransaction,
		e.FromSource,
		to,
		toSource,
		e.ToProjectID,
		e.EventID,
	}
}

// Writer appends entries and returns a reference to the written row.
type Writer interface {
	AppendMovement(ctx context.Context, e Entry) (rowRef string, err error)
}
