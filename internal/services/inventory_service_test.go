package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"designledger/internal/amqp"
	"designledger/internal/core"
	"designledger/internal/inventory"
	"designledger/internal/inventory/memory"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.ItemMovedMessage
	err      error
	closed   bool
}

func (f *fakePublisher) PublishItemMoved(_ context.Context, msg *amqp.ItemMovedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeRecorder struct {
	mu            sync.Mutex
	moved         map[string]int
	publishFailed int
}

func (f *fakeRecorder) ItemMoved(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moved == nil {
		f.moved = make(map[string]int)
	}
	f.moved[kind]++
}

func (f *fakeRecorder) PublishFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishFailed++
}

// countingStore counts item list calls to observe the cache.
type countingStore struct {
	*memory.Store
	mu        sync.Mutex
	listCalls int
}

func (c *countingStore) ListTransactionItems(ctx context.Context, id string) ([]core.TransactionItem, error) {
	c.mu.Lock()
	c.listCalls++
	c.mu.Unlock()
	return c.Store.ListTransactionItems(ctx, id)
}

func (c *countingStore) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

type fixture struct {
	svc      *InventoryService
	store    *countingStore
	pub      *fakePublisher
	rec      *fakeRecorder
	project  core.Project
	txA, txB core.Transaction
	stock    core.Transaction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: &countingStore{Store: memory.New()},
		pub:   &fakePublisher{},
		rec:   &fakeRecorder{},
	}
	f.svc = NewInventoryService(f.store, f.pub, Options{Recorder: f.rec})

	var err error
	f.project, err = f.svc.CreateProject(ctx, core.Project{Name: "Lake House", ClientName: "Rossi"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	newTx := func(projectID *string, source string) core.Transaction {
		tx, err := f.svc.CreateTransaction(ctx, core.Transaction{
			ProjectID: projectID,
			Source:    source,
			Date:      core.NewDate(2025, 3, 1),
			Amount:    core.Money{Cents: 120000},
			Type:      core.Purchase,
		})
		if err != nil {
			t.Fatalf("CreateTransaction(%s) error = %v", source, err)
		}
		return tx
	}
	f.txA = newTx(&f.project.ID, "West Elm")
	f.txB = newTx(&f.project.ID, "CB2")
	f.stock = newTx(nil, "Warehouse")
	return f
}

func itemIDs(items []core.TransactionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Item.ID
	}
	return out
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.svc.CreateProject(ctx, core.Project{Name: "Attic"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	d, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(d.Projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(d.Projects))
	}
	counts := map[string]int{}
	for _, p := range d.Projects {
		counts[p.Project.ID] = p.TransactionCount
	}
	if counts[f.project.ID] != 2 || counts[other.ID] != 0 {
		t.Errorf("counts = %v", counts)
	}
	if len(d.Inventory) != 1 || d.Inventory[0].ID != f.stock.ID {
		t.Errorf("inventory = %+v", d.Inventory)
	}
}

func TestMoveTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.svc.CreateProject(ctx, core.Project{Name: "Attic"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	otherTx, err := f.svc.CreateTransaction(ctx, core.Transaction{
		ProjectID: &other.ID, Source: "IKEA", Date: core.NewDate(2025, 3, 2),
		Amount: core.Money{Cents: 100}, Type: core.Purchase,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	tests := []struct {
		name string
		from core.Transaction
		want []string
	}{
		{"project transaction", f.txA, []string{f.txB.ID, f.stock.ID}},
		{"inventory transaction", f.stock, []string{f.txA.ID, f.txB.ID, otherTx.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := f.svc.MoveTargets(ctx, tt.from)
			if err != nil {
				t.Fatalf("MoveTargets() error = %v", err)
			}
			got := map[string]bool{}
			for _, tx := range targets {
				got[tx.ID] = true
			}
			if got[tt.from.ID] {
				t.Error("targets include the viewed transaction")
			}
			if len(got) != len(tt.want) {
				t.Errorf("targets = %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("targets missing %s", id)
				}
			}
		})
	}
}

func TestCreateTransactionUnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateTransaction(context.Background(), core.Transaction{
		ProjectID: core.StringPtr("missing"),
		Source:    "Shop",
		Date:      core.NewDate(2025, 1, 1),
		Amount:    core.Money{Cents: 100},
		Type:      core.Purchase,
	})
	if !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMoveItemUpdatesViewsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sofa, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Sofa", Price: core.Money{Cents: 90000}})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	lamp, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Lamp"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	view, err := f.svc.TransactionView(ctx, f.txA.ID)
	if err != nil {
		t.Fatalf("TransactionView() error = %v", err)
	}
	if len(view.InTransaction) != 2 || len(view.MovedOut) != 0 {
		t.Fatalf("before move: in=%v out=%v", itemIDs(view.InTransaction), itemIDs(view.MovedOut))
	}
	if view.Project == nil || view.Project.ID != f.project.ID {
		t.Errorf("view project = %+v", view.Project)
	}

	if _, err := f.svc.MoveItem(ctx, sofa.ID, f.txB.ID); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}

	viewA, err := f.svc.TransactionView(ctx, f.txA.ID)
	if err != nil {
		t.Fatalf("TransactionView(A) error = %v", err)
	}
	if got := itemIDs(viewA.InTransaction); len(got) != 1 || got[0] != lamp.ID {
		t.Errorf("A in = %v, want [%s]", got, lamp.ID)
	}
	if got := itemIDs(viewA.MovedOut); len(got) != 1 || got[0] != sofa.ID {
		t.Errorf("A moved out = %v, want [%s]", got, sofa.ID)
	}

	viewB, err := f.svc.TransactionView(ctx, f.txB.ID)
	if err != nil {
		t.Fatalf("TransactionView(B) error = %v", err)
	}
	if got := itemIDs(viewB.InTransaction); len(got) != 1 || got[0] != sofa.ID {
		t.Errorf("B in = %v, want [%s]", got, sofa.ID)
	}

	if len(f.pub.messages) != 1 {
		t.Fatalf("published = %d, want 1", len(f.pub.messages))
	}
	msg := f.pub.messages[0]
	if msg.Kind != amqp.KindMoved || msg.ItemID != sofa.ID || msg.Description != "Sofa" ||
		msg.FromTransactionID != f.txA.ID || msg.ToTransactionID != f.txB.ID {
		t.Errorf("message = %+v", msg)
	}
	if f.rec.moved[amqp.KindMoved] != 1 {
		t.Errorf("recorded moves = %v", f.rec.moved)
	}
}

func TestReturnItemToInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chair, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Chair"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if _, err := f.svc.ReturnItemToInventory(ctx, chair.ID); err != nil {
		t.Fatalf("ReturnItemToInventory() error = %v", err)
	}

	view, err := f.svc.TransactionView(ctx, f.txA.ID)
	if err != nil {
		t.Fatalf("TransactionView() error = %v", err)
	}
	if len(view.InTransaction) != 0 || len(view.MovedOut) != 1 {
		t.Fatalf("in=%v out=%v", itemIDs(view.InTransaction), itemIDs(view.MovedOut))
	}
	if !view.MovedOut[0].Association.To.BusinessInventory() {
		t.Errorf("destination = %+v, want business inventory", view.MovedOut[0].Association.To)
	}

	if _, err := f.svc.ReturnItemToInventory(ctx, chair.ID); !errors.Is(err, inventory.ErrAlreadyInInventory) {
		t.Errorf("second return error = %v, want ErrAlreadyInInventory", err)
	}
	if len(f.pub.messages) != 1 || f.pub.messages[0].Kind != amqp.KindReturned {
		t.Errorf("messages = %+v", f.pub.messages)
	}
	if f.pub.messages[0].ToTransactionID != "" {
		t.Errorf("return should have no destination, got %q", f.pub.messages[0].ToTransactionID)
	}
}

func TestMoveItemErrorsDoNotPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Rug"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	tests := []struct {
		name    string
		itemID  string
		target  string
		wantErr error
	}{
		{"same transaction", it.ID, f.txA.ID, inventory.ErrSameTransaction},
		{"unknown item", "nope", f.txB.ID, inventory.ErrNotFound},
		{"unknown target", it.ID, "nope", inventory.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MoveItem(ctx, tt.itemID, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MoveItem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(f.pub.messages) != 0 {
		t.Errorf("failed moves published %d messages", len(f.pub.messages))
	}
}

func TestPublishFailureDoesNotFailMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.err = amqp.ErrCircuitOpen

	it, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Mirror"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if _, err := f.svc.MoveItem(ctx, it.ID, f.txB.ID); err != nil {
		t.Fatalf("MoveItem() error = %v, publish failures must not fail the move", err)
	}
	if f.rec.publishFailed != 1 {
		t.Errorf("publish failures = %d, want 1", f.rec.publishFailed)
	}
	got, err := f.store.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if core.Deref(got.TransactionID) != f.txB.ID {
		t.Errorf("item transaction = %q, want %q", core.Deref(got.TransactionID), f.txB.ID)
	}
}

func TestTransactionItemsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Vase"}); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.TransactionItems(ctx, f.txA.ID); err != nil {
			t.Fatalf("TransactionItems() error = %v", err)
		}
	}
	if got := f.store.calls(); got != 1 {
		t.Errorf("store calls after cached reads = %d, want 1", got)
	}

	if _, err := f.svc.AddItem(ctx, f.txA.ID, core.Item{Description: "Bowl"}); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	items, err := f.svc.TransactionItems(ctx, f.txA.ID)
	if err != nil {
		t.Fatalf("TransactionItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items after add = %d, want 2", len(items))
	}
	if got := f.store.calls(); got != 2 {
		t.Errorf("store calls after invalidation = %d, want 2", got)
	}
}

func TestNilPublisher(t *testing.T) {
	store := memory.New()
	svc := NewInventoryService(store, nil, Options{})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, core.Project{Name: "P"})
	tx, err := svc.CreateTransaction(ctx, core.Transaction{ProjectID: &p.ID, Source: "S", Date: core.NewDate(2025, 1, 1), Amount: core.Money{Cents: 1}, Type: core.Purchase})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	it, err := svc.AddItem(ctx, tx.ID, core.Item{Description: "Stool"})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if _, err := svc.ReturnItemToInventory(ctx, it.ID); err != nil {
		t.Fatalf("ReturnItemToInventory() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestCloseClosesPublisher(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewInventoryService(memory.New(), pub, Options{})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pub.closed {
		t.Error("publisher was not closed")
	}
}
