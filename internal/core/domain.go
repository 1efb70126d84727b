package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Purchase TransactionType = "purchase"
	Return   TransactionType = "return"
	Sale     TransactionType = "sale"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Project groups the transactions and items of one client engagement.
	Project struct {
		ID         string
		Name       string
		ClientName string
		Budget     Money
		CreatedAt  time.Time
	}

	// Transaction is a purchase, return or sale. A nil ProjectID marks a
	// business inventory transaction.
	Transaction struct {
		ID        string
		ProjectID *string
		Source    string
		Date      Date
		Amount    Money
		Type      TransactionType
		Notes     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Item is an inventory item with its movement tracking columns.
	Item struct {
		ID                        string
		Description               string
		SKU                       string
		Price                     Money
		ProjectID                 *string
		TransactionID             *string // latest association
		LegacyTransactionID       *string
		PriorProjectTransactionID *string
		UpdatedAt                 time.Time
	}

	// Movement records one change of an item's association.
	// A nil ToTransactionID means the item went back to business inventory.
	Movement struct {
		ItemID            string
		FromTransactionID string
		ToTransactionID   *string
		ToProjectID       *string
		At                time.Time
	}
)

var (
	ErrInvalidDay             = errors.New("invalid day")
	ErrInvalidMonth           = errors.New("invalid month")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyName              = errors.New("empty project name")
	ErrEmptySource            = errors.New("empty transaction source")
	ErrEmptyDescription       = errors.New("empty description")
	ErrDescriptionTooLong     = errors.New("description too long (max 200 characters)")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
)

// NewID returns a fresh identifier for projects, transactions and items.
func NewID() string {
	return uuid.NewString()
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Purchase, Return, Sale:
		return true
	default:
		return false
	}
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.Budget.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Source) == "" {
		return ErrEmptySource
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidTransactionType
	}
	if len(t.Notes) > 1000 {
		return errors.New("notes too long (max 1000 characters)")
	}
	return nil
}

// IsBusinessInventory reports whether the transaction belongs to no project.
func (t Transaction) IsBusinessInventory() bool {
	return t.ProjectID == nil
}

func (i Item) Validate() error {
	if len(strings.TrimSpace(i.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(i.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if i.Price.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// SnapshotFor returns the view of the item used by the movement classifier
// when looking at transaction txID. history must be in chronological order.
func (i Item) SnapshotFor(txID string, history []Movement) ItemSnapshot {
	return ItemSnapshot{
		ID:                        i.ID,
		ExplicitlyMoved:           MovedOutOf(txID, history),
		LatestTransactionID:       i.TransactionID,
		LegacyTransactionID:       i.LegacyTransactionID,
		CurrentProjectID:          i.ProjectID,
		PriorProjectTransactionID: i.PriorProjectTransactionID,
	}
}

// References reports whether the item's columns or its movement history
// point at txID.
func (i Item) References(txID string, history []Movement) bool {
	for _, ref := range []*string{i.TransactionID, i.LegacyTransactionID, i.PriorProjectTransactionID} {
		if ref != nil && *ref == txID {
			return true
		}
	}
	for _, m := range history {
		if m.FromTransactionID == txID || Deref(m.ToTransactionID) == txID {
			return true
		}
	}
	return false
}

// MovedOutOf reports whether the latest movement touching txID took the item
// out of it. A later move back into txID clears the flag.
func MovedOutOf(txID string, history []Movement) bool {
	for k := len(history) - 1; k >= 0; k-- {
		m := history[k]
		if Deref(m.ToTransactionID) == txID {
			return false
		}
		if m.FromTransactionID == txID {
			return true
		}
	}
	return false
}
