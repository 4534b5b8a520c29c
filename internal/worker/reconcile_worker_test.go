package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/kv/memory"
)

type fakeReconciler struct {
	mu       sync.Mutex
	repaired []string
	sweeps   int
	err      error
}

func (f *fakeReconciler) Repair(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repaired = append(f.repaired, id)
	return true, f.err
}

func (f *fakeReconciler) Sweep(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 1, f.err
}

func (f *fakeReconciler) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestReconcileWorker_HandleMessage(t *testing.T) {
	ctx := context.Background()
	rec := &fakeReconciler{}
	w := NewReconcileWorker(time.Hour)
	w.Register("expense", rec)

	msgs := []*amqp.EntityChangeMessage{
		amqp.NewEntityChangeMessage("expense", "expenses", "e1", amqp.OpCreate),
		amqp.NewEntityChangeMessage("expense", "expenses", "e2", amqp.OpDelete),
		amqp.NewEntityChangeMessage("expense", "expenses", "", amqp.OpDeleteMany),
		amqp.NewEntityChangeMessage("user-settings", "", "default", amqp.OpUpdate),
	}
	for _, m := range msgs {
		if err := w.HandleMessage(ctx, m); err != nil {
			t.Fatalf("HandleMessage(%+v) error = %v", m, err)
		}
	}

	if !slices.Equal(rec.repaired, []string{"e1", "e2"}) {
		t.Errorf("repaired = %v, want [e1 e2]", rec.repaired)
	}
	if rec.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", rec.sweeps)
	}

	rec.err = errors.New("store down")
	if err := w.HandleMessage(ctx, msgs[0]); err == nil {
		t.Error("expected repair failure to be returned for requeue")
	}
	bad := &amqp.EntityChangeMessage{Kind: "expense", ID: "e1", Op: "explode"}
	if err := w.HandleMessage(ctx, bad); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestReconcileWorker_SweepAllSkipsFailures(t *testing.T) {
	ok := &fakeReconciler{}
	failing := &fakeReconciler{err: errors.New("boom")}
	w := NewReconcileWorker(time.Hour)
	w.Register("a", failing)
	w.Register("b", ok)

	if got := w.SweepAll(context.Background()); got != 1 {
		t.Errorf("SweepAll() = %d, want 1", got)
	}
	if ok.sweeps != 1 || failing.sweeps != 1 {
		t.Errorf("sweeps = %d/%d, want every collection visited", ok.sweeps, failing.sweeps)
	}
}

func TestReconcileWorker_StartStop(t *testing.T) {
	rec := &fakeReconciler{}
	w := NewReconcileWorker(10 * time.Millisecond)
	w.Register("expense", rec)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.sweepCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.sweepCount() < 2 {
		t.Fatalf("sweeps = %d, want periodic sweeps", rec.sweepCount())
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("worker still running after Stop()")
	}
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() on stopped worker error = %v", err)
	}
}

// The worker drives a real collection: an expense written without its index
// entry is picked up from its change message.
func TestReconcileWorker_RepairsCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	h := entity.NewHandle(store, entity.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	expenses := entity.NewCollection(h, core.ExpenseKind(nil, nil))

	if _, err := expenses.Entity("orphan").Save(ctx, core.Expense{Amount: 3, Category: core.Food, Currency: core.INR}); err != nil {
		t.Fatal(err)
	}

	w := NewReconcileWorker(time.Hour)
	w.Register(expenses.Kind().Name, expenses)
	msg := amqp.NewEntityChangeMessage("expense", "expenses", "orphan", amqp.OpCreate)
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	ids, err := expenses.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"orphan"}) {
		t.Errorf("IDs() = %v, want [orphan]", ids)
	}
}
