package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2025-03-14" {
		t.Fatalf("round trip = %q", d.String())
	}
	if _, err := ParseDate("14/03/2025"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Source: "Restoration Hardware",
		Date:   NewDate(2025, 1, 1),
		Amount: Money{Cents: 120000},
		Type:   Purchase,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Source: "a", Date: Date{}, Amount: Money{Cents: 1}, Type: Purchase},
		{Source: "", Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Type: Purchase},
		{Source: "a", Date: NewDate(2025, 1, 1), Amount: Money{Cents: 0}, Type: Purchase},
		{Source: "a", Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Type: "gift"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestProjectAndItemValidate(t *testing.T) {
	if err := (Project{Name: " "}).Validate(); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if err := (Project{Name: "Loft", Budget: Money{Cents: -1}}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := (Item{Description: ""}).Validate(); err != ErrEmptyDescription {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if err := (Item{Description: "Lamp", Price: Money{Cents: 0}}).Validate(); err != nil {
		t.Fatalf("zero price should be allowed, got %v", err)
	}
}

func TestMovedOutOf(t *testing.T) {
	tx2 := "tx-2"
	tx1 := "tx-1"
	history := []Movement{
		{ItemID: "i", FromTransactionID: "tx-1", ToTransactionID: &tx2},
	}
	if !MovedOutOf("tx-1", history) {
		t.Fatal("expected item moved out of tx-1")
	}
	if MovedOutOf("tx-2", history) {
		t.Fatal("tx-2 received the item, not lost it")
	}

	back := append(history, Movement{ItemID: "i", FromTransactionID: "tx-2", ToTransactionID: &tx1})
	if MovedOutOf("tx-1", back) {
		t.Fatal("moving back into tx-1 should clear the flag")
	}
	if !MovedOutOf("tx-2", back) {
		t.Fatal("expected item moved out of tx-2")
	}
}

func TestItemReferences(t *testing.T) {
	tx3 := "tx-3"
	it := Item{ID: "i", TransactionID: StringPtr("tx-3"), LegacyTransactionID: StringPtr("tx-1")}
	history := []Movement{
		{FromTransactionID: "tx-1", ToTransactionID: StringPtr("tx-2")},
		{FromTransactionID: "tx-2", ToTransactionID: &tx3},
	}
	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		if !it.References(id, history) {
			t.Errorf("expected reference to %s", id)
		}
	}
	if it.References("tx-9", history) {
		t.Error("unexpected reference to tx-9")
	}
}
