package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"designledger/internal/core"
	"designledger/internal/storage"
)

// seedDB writes a project with two transactions and moves one of the
// first transaction's items into the second.
func seedDB(t *testing.T) (dbPath, txA, txB string) {
	t.Helper()
	ctx := context.Background()
	dbPath = filepath.Join(t.TempDir(), "ledger.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	defer repo.Close()

	p, err := repo.CreateProject(ctx, core.Project{Name: "Lake House"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	a, err := repo.CreateTransaction(ctx, core.Transaction{
		ProjectID: &p.ID, Source: "West Elm", Date: core.NewDate(2025, 3, 1),
		Amount: core.Money{Cents: 50000}, Type: core.Purchase,
	})
	if err != nil {
		t.Fatalf("create tx A: %v", err)
	}
	b, err := repo.CreateTransaction(ctx, core.Transaction{
		ProjectID: &p.ID, Source: "CB2", Date: core.NewDate(2025, 3, 2),
		Amount: core.Money{Cents: 20000}, Type: core.Purchase,
	})
	if err != nil {
		t.Fatalf("create tx B: %v", err)
	}
	if _, err := repo.AddItem(ctx, a.ID, core.Item{Description: "Walnut console", SKU: "WE-1", Price: core.Money{Cents: 89900}}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	lamp, err := repo.AddItem(ctx, a.ID, core.Item{Description: "Brass lamp"})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := repo.MoveItem(ctx, lamp.ID, b.ID); err != nil {
		t.Fatalf("move item: %v", err)
	}
	return dbPath, a.ID, b.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSplit(t *testing.T) {
	dbPath, txA, txB := seedDB(t)

	out, err := run(t, "--db", dbPath, "split", txA)
	if err != nil {
		t.Fatalf("split error = %v\n%s", err, out)
	}
	for _, want := range []string{
		"West Elm  2025-03-01  $500.00",
		"In this transaction (1)",
		"Walnut console",
		"$899.00",
		"Moved out (1)",
		"Brass lamp",
		"-> " + txB,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("split output missing %q\n%s", want, out)
		}
	}

	out, err = run(t, "--db", dbPath, "split", txB)
	if err != nil {
		t.Fatalf("split B error = %v", err)
	}
	if !strings.Contains(out, "In this transaction (1)") || !strings.Contains(out, "Moved out (0)") {
		t.Errorf("split B output:\n%s", out)
	}
}

func TestSplitErrors(t *testing.T) {
	dbPath, _, _ := seedDB(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown transaction", []string{"--db", dbPath, "split", "missing"}},
		{"no argument", []string{"--db", dbPath, "split"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExport(t *testing.T) {
	dbPath, txA, _ := seedDB(t)
	path := filepath.Join(t.TempDir(), "west-elm.xlsx")

	out, err := run(t, "--db", dbPath, "export", txA, "-o", path)
	if err != nil {
		t.Fatalf("export error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 in transaction, 1 moved out") {
		t.Errorf("export output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("export is not a zip archive")
	}
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "ledger.db")

	out, err := run(t, "--db", dbPath, "migrate", "up")
	if err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if strings.Contains(out, "schema version 0") || !strings.Contains(out, "schema version") {
		t.Errorf("migrate up output = %q", out)
	}

	out, err = run(t, "--db", dbPath, "migrate", "version")
	if err != nil {
		t.Fatalf("migrate version error = %v", err)
	}
	if strings.Contains(out, "dirty") {
		t.Errorf("version output = %q", out)
	}

	if _, err := run(t, "--db", dbPath, "migrate", "down", "--steps", "0"); err == nil {
		t.Error("expected error for zero steps")
	}
}
