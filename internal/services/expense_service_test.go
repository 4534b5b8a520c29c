package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/kv/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []amqp.EntityChangeMessage
	err  error
}

func (p *recordingPublisher) PublishEntityChange(_ context.Context, msg *amqp.EntityChangeMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, *msg)
	return p.err
}

func (p *recordingPublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.Op+":"+m.ID)
	}
	return out
}

var fixedNow = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts Options) *ExpenseService {
	t.Helper()
	h := entity.NewHandle(memory.New(), entity.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return New(h, opts)
}

func TestExpenseService_Settings(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(t, Options{Publisher: pub})

	st, err := svc.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if st != core.DefaultSettings() {
		t.Fatalf("GetSettings() = %+v, want defaults", st)
	}

	updated, err := svc.UpdateSettings(ctx, map[string]any{"currency": core.EUR, "onboarded": true})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	want := core.UserSettings{ID: "default", Currency: core.EUR, Onboarded: true}
	if updated != want {
		t.Errorf("UpdateSettings() = %+v, want %+v", updated, want)
	}
	if got := pub.ops(); len(got) != 1 || got[0] != "update:default" {
		t.Errorf("published %v, want [update:default]", got)
	}
}

func TestExpenseService_CreateExpense(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(t, Options{Publisher: pub})
	if _, err := svc.UpdateSettings(ctx, map[string]any{"currency": core.AED}); err != nil {
		t.Fatal(err)
	}

	created, err := svc.CreateExpense(ctx, core.Expense{ID: "client-chosen", Amount: 42, Category: core.Transport})
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if created.ID == "" || created.ID == "client-chosen" {
		t.Errorf("CreateExpense() id = %q, want a generated id", created.ID)
	}
	if created.Currency != core.AED {
		t.Errorf("currency = %q, want settings currency AED", created.Currency)
	}
	if created.Date != core.FormatDate(fixedNow) {
		t.Errorf("date = %q, want %q", created.Date, core.FormatDate(fixedNow))
	}

	if _, err := svc.CreateExpense(ctx, core.Expense{Amount: 0, Category: core.Food}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("CreateExpense(zero amount) error = %v, want ErrInvalidInput", err)
	}

	ops := pub.ops()
	if len(ops) != 2 || ops[1] != "create:"+created.ID {
		t.Errorf("published %v, want a create event last", ops)
	}
}

func TestExpenseService_UpdateExpense(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{})
	created, err := svc.CreateExpense(ctx, core.Expense{Amount: 10, Category: core.Food, Description: "pizza"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateExpense(ctx, created.ID, map[string]any{"amount": 12.5})
	if err != nil {
		t.Fatalf("UpdateExpense() error = %v", err)
	}
	if updated.Amount != 12.5 || updated.Description != "pizza" || updated.ID != created.ID {
		t.Errorf("UpdateExpense() = %+v", updated)
	}

	_, err = svc.UpdateExpense(ctx, "missing", map[string]any{"amount": 1})
	if !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("UpdateExpense(missing) error = %v, want ErrNotFound", err)
	}
	if ok, _ := svc.Expenses().Entity("missing").Exists(ctx); ok {
		t.Error("UpdateExpense(missing) created a record")
	}
}

func TestExpenseService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, Options{Publisher: pub, PageLimit: 2})

	var ids []string
	for i := range 5 {
		e, err := svc.CreateExpense(ctx, core.Expense{Amount: float64(i + 1), Category: core.Bills})
		if err != nil {
			t.Fatalf("CreateExpense() error = %v (publish failures must not fail mutations)", err)
		}
		ids = append(ids, e.ID)
	}

	page, err := svc.ListExpenses(ctx, "", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Next == "" {
		t.Errorf("ListExpenses() = %d items next=%q, want limit capped at 2", len(page.Items), page.Next)
	}

	deleted, err := svc.DeleteExpense(ctx, ids[0])
	if err != nil || !deleted {
		t.Fatalf("DeleteExpense() = %v, %v", deleted, err)
	}
	deleted, err = svc.DeleteExpense(ctx, ids[0])
	if err != nil || deleted {
		t.Errorf("second DeleteExpense() = %v, %v; want false, nil", deleted, err)
	}

	n, err := svc.DeleteAllExpenses(ctx)
	if err != nil {
		t.Fatalf("DeleteAllExpenses() error = %v", err)
	}
	if n != 4 {
		t.Errorf("DeleteAllExpenses() = %d, want 4 (all pages)", n)
	}
	page, err = svc.ListExpenses(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("ListExpenses() after wipe = %+v, want empty non-nil items", page.Items)
	}
}

func TestExpenseService_DeleteAllClearsDanglingIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	h := entity.NewHandle(store, entity.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := New(h, Options{Now: func() time.Time { return fixedNow }})

	kept, err := svc.CreateExpense(ctx, core.Expense{Amount: 1, Category: core.Food})
	if err != nil {
		t.Fatal(err)
	}
	lost, err := svc.CreateExpense(ctx, core.Expense{Amount: 2, Category: core.Food})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, svc.Expenses().Kind().Key(lost.ID)); err != nil {
		t.Fatal(err)
	}

	n, err := svc.DeleteAllExpenses(ctx)
	if err != nil {
		t.Fatalf("DeleteAllExpenses() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteAllExpenses() = %d, want 1 (only %s had a record)", n, kept.ID)
	}
	if count, err := svc.Expenses().Count(ctx); err != nil || count != 0 {
		t.Errorf("Count() after wipe = %d, %v; want 0", count, err)
	}
}

func TestExpenseService_Seeds(t *testing.T) {
	ctx := context.Background()
	seeds := []core.Expense{
		{ID: "seed-1", Amount: 5, Category: core.Food, Currency: core.INR, Date: "2025-01-01T00:00:00.000Z"},
		{ID: "seed-2", Amount: 7, Category: core.Health, Currency: core.INR, Date: "2025-01-02T00:00:00.000Z"},
	}
	svc := newTestService(t, Options{Seeds: seeds})

	page, err := svc.ListExpenses(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0] != seeds[0] || page.Items[1] != seeds[1] {
		t.Errorf("ListExpenses() = %+v, want the seeds", page.Items)
	}
}
