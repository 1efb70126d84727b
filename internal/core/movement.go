package core

const (
	CurrentlyIn AssociationKind = "currently_in"
	MovedOut    AssociationKind = "moved_out"
	Unknown     AssociationKind = "unknown"
)

type (
	// ItemSnapshot is the read-only view of an item inside one transaction
	// context. Nil pointers mean the column is absent or null.
	ItemSnapshot struct {
		ID                        string
		ExplicitlyMoved           bool
		LatestTransactionID       *string
		LegacyTransactionID       *string
		CurrentProjectID          *string
		PriorProjectTransactionID *string
	}

	AssociationKind string

	// Destination is where a moved item went: another transaction, or
	// business inventory when TransactionID is nil.
	Destination struct {
		TransactionID *string
	}

	// Association is the resolved relation between an item and the viewed
	// transaction. TransactionID is set for CurrentlyIn, FromTransactionID
	// and To for MovedOut.
	Association struct {
		Kind              AssociationKind
		TransactionID     string
		FromTransactionID string
		To                Destination
	}

	// TransactionItem pairs an item with its association to the viewed transaction.
	TransactionItem struct {
		Item        Item
		Snapshot    ItemSnapshot
		Association Association
	}
)

// BusinessInventory reports whether the item left for general inventory.
func (d Destination) BusinessInventory() bool {
	return d.TransactionID == nil
}

// BusinessInventoryLabel names the destination of items returned to
// general inventory.
const BusinessInventoryLabel = "Business inventory"

// DestinationLabel is where a moved-out item went: the destination
// transaction id, or BusinessInventoryLabel.
func (a Association) DestinationLabel() string {
	if a.To.BusinessInventory() {
		return BusinessInventoryLabel
	}
	return *a.To.TransactionID
}

// InTransaction reports whether the association keeps the item visible in
// the viewed transaction. Unknown fails open.
func (a Association) InTransaction() bool {
	return a.Kind != MovedOut
}

// ResolveAssociation collapses the snapshot's overlapping columns into a
// single association relative to currentTransactionID.
//
// Precedence: explicit move flag, latest transaction id, legacy transaction
// id (match only), transitional return out of a project, then Unknown.
// A legacy id that does not match is not evidence of a move.
func ResolveAssociation(s ItemSnapshot, currentTransactionID string) Association {
	movedTo := func(dest *string) Association {
		return Association{
			Kind:              MovedOut,
			FromTransactionID: currentTransactionID,
			To:                Destination{TransactionID: dest},
		}
	}

	if s.ExplicitlyMoved {
		var dest *string
		if s.LatestTransactionID != nil && *s.LatestTransactionID != currentTransactionID {
			dest = s.LatestTransactionID
		}
		return movedTo(dest)
	}

	if s.LatestTransactionID != nil {
		if *s.LatestTransactionID == currentTransactionID {
			return Association{Kind: CurrentlyIn, TransactionID: currentTransactionID}
		}
		return movedTo(s.LatestTransactionID)
	}

	if s.LegacyTransactionID != nil && *s.LegacyTransactionID == currentTransactionID {
		return Association{Kind: CurrentlyIn, TransactionID: currentTransactionID}
	}

	if s.CurrentProjectID == nil && s.PriorProjectTransactionID != nil &&
		*s.PriorProjectTransactionID == currentTransactionID {
		return movedTo(nil)
	}

	return Association{Kind: Unknown}
}

// PartitionByAssociation splits resolved items into those shown in the
// transaction and those moved out. Input order is kept in both slices.
func PartitionByAssociation(items []TransactionItem) (inTransaction, movedOut []TransactionItem) {
	inTransaction = make([]TransactionItem, 0, len(items))
	movedOut = make([]TransactionItem, 0)
	for _, it := range items {
		if it.Association.InTransaction() {
			inTransaction = append(inTransaction, it)
		} else {
			movedOut = append(movedOut, it)
		}
	}
	return inTransaction, movedOut
}

// SplitItemsByMovement partitions snapshots into items still in
// currentTransactionID and items that moved elsewhere. Every item lands in
// exactly one slice and relative order is preserved.
func SplitItemsByMovement(items []ItemSnapshot, currentTransactionID string) (inTransaction, movedOut []ItemSnapshot) {
	inTransaction = make([]ItemSnapshot, 0, len(items))
	movedOut = make([]ItemSnapshot, 0)
	for _, s := range items {
		if ResolveAssociation(s, currentTransactionID).InTransaction() {
			inTransaction = append(inTransaction, s)
		} else {
			movedOut = append(movedOut, s)
		}
	}
	return inTransaction, movedOut
}

// ResolveTransactionItems builds the classified view of items for one
// transaction. histories maps item id to its chronological movements.
func ResolveTransactionItems(items []Item, histories map[string][]Movement, currentTransactionID string) []TransactionItem {
	out := make([]TransactionItem, 0, len(items))
	for _, it := range items {
		snap := it.SnapshotFor(currentTransactionID, histories[it.ID])
		out = append(out, TransactionItem{
			Item:        it,
			Snapshot:    snap,
			Association: ResolveAssociation(snap, currentTransactionID),
		})
	}
	return out
}
