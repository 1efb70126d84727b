package inventory

import (
	"time"

	"designledger/internal/core"
)

// currentTransaction is the transaction an item is associated with now,
// falling back from the latest column to the legacy one.
func currentTransaction(it core.Item) string {
	if it.TransactionID != nil {
		return *it.TransactionID
	}
	return core.Deref(it.LegacyTransactionID)
}

// PlanMove updates it in place to belong to target and returns the movement
// to record. Storage adapters persist both. An item coming out of business
// inventory has an empty FromTransactionID.
func PlanMove(it *core.Item, target core.Transaction, at time.Time) (core.Movement, error) {
	from := currentTransaction(*it)
	if it.TransactionID == nil && it.ProjectID == nil && it.PriorProjectTransactionID != nil {
		from = ""
	}
	if it.TransactionID != nil && *it.TransactionID == target.ID {
		return core.Movement{}, ErrSameTransaction
	}

	to := target.ID
	it.TransactionID = &to
	it.ProjectID = target.ProjectID
	it.PriorProjectTransactionID = nil
	it.UpdatedAt = at

	return core.Movement{
		ItemID:            it.ID,
		FromTransactionID: from,
		ToTransactionID:   &to,
		ToProjectID:       target.ProjectID,
		At:                at,
	}, nil
}

// PlanReturn sends it back to business inventory, remembering the
// transaction it left in PriorProjectTransactionID.
func PlanReturn(it *core.Item, at time.Time) (core.Movement, error) {
	if it.ProjectID == nil {
		return core.Movement{}, ErrAlreadyInInventory
	}
	from := currentTransaction(*it)

	it.PriorProjectTransactionID = core.StringPtr(from)
	it.TransactionID = nil
	it.ProjectID = nil
	it.UpdatedAt = at

	return core.Movement{
		ItemID:            it.ID,
		FromTransactionID: from,
		At:                at,
	}, nil
}
