package memory

import (
	"context"
	"testing"
	"time"

	"designledger/internal/ledger"
)

func TestStoreAppendMovement(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.AppendMovement(ctx, ledger.Entry{ItemID: "sofa", Kind: "moved", MovedAt: time.Now()})
	if err != nil {
		t.Fatalf("AppendMovement() error = %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}
	if _, err := s.AppendMovement(ctx, ledger.Entry{}); err == nil {
		t.Error("entry without item id should be rejected")
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].ItemID != "sofa" {
		t.Fatalf("Entries() = %+v", entries)
	}
	entries[0].ItemID = "changed"
	if s.Entries()[0].ItemID != "sofa" {
		t.Error("Entries() must return a copy")
	}
}
