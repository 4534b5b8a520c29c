package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/log"
)

// Reconciler restores record/index consistency of one collection.
// *entity.Collection satisfies it.
type Reconciler interface {
	Repair(ctx context.Context, id string) (bool, error)
	Sweep(ctx context.Context) (int, error)
}

// ReconcileWorker repairs collection indexes from entity change messages and
// sweeps every registered collection on a fixed interval as a backstop for
// lost messages.
type ReconcileWorker struct {
	collections map[string]Reconciler
	interval    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconcileWorker creates a worker sweeping every interval.
func NewReconcileWorker(interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileWorker{
		collections: make(map[string]Reconciler),
		interval:    interval,
	}
}

// Register routes messages for kind to r. Call before Start.
func (w *ReconcileWorker) Register(kind string, r Reconciler) {
	w.collections[kind] = r
}

// HandleMessage reconciles the entity referenced by msg. Messages for kinds
// without a registered collection (singletons) are ignored.
func (w *ReconcileWorker) HandleMessage(ctx context.Context, msg *amqp.EntityChangeMessage) error {
	r, ok := w.collections[msg.Kind]
	if !ok {
		slog.DebugContext(ctx, "Ignoring change for unindexed kind",
			log.FieldComponent, log.ComponentWorker, log.FieldKind, msg.Kind)
		return nil
	}

	switch msg.Op {
	case amqp.OpCreate, amqp.OpUpdate, amqp.OpDelete:
		changed, err := r.Repair(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("repair %s %s: %w", msg.Kind, msg.ID, err)
		}
		if changed {
			slog.InfoContext(ctx, "Repaired index after change",
				log.FieldComponent, log.ComponentWorker,
				log.FieldKind, msg.Kind,
				log.FieldEntityID, msg.ID,
				log.FieldOperation, msg.Op)
		}
	case amqp.OpDeleteMany:
		if _, err := r.Sweep(ctx); err != nil {
			return fmt.Errorf("sweep %s: %w", msg.Kind, err)
		}
	default:
		return fmt.Errorf("unknown operation: %s", msg.Op)
	}
	return nil
}

// SweepAll sweeps every registered collection and returns the number of
// dangling ids dropped. A failing collection is logged and skipped.
func (w *ReconcileWorker) SweepAll(ctx context.Context) int {
	kinds := make([]string, 0, len(w.collections))
	for k := range w.collections {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	total := 0
	for _, kind := range kinds {
		n, err := w.collections[kind].Sweep(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Sweep failed",
				log.FieldComponent, log.ComponentWorker,
				log.FieldKind, kind,
				log.FieldError, err)
			continue
		}
		total += n
	}
	if total > 0 {
		slog.InfoContext(ctx, "Sweep dropped dangling ids",
			log.FieldComponent, log.ComponentWorker, log.FieldCount, total)
	}
	return total
}

// Start begins the periodic sweep loop. Returns an error if already running.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reconcile worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Reconcile worker started",
		log.FieldComponent, log.ComponentWorker,
		"interval", w.interval,
		"collections", len(w.collections))
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (w *ReconcileWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile worker stopped", log.FieldComponent, log.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile worker stop timed out", log.FieldComponent, log.ComponentWorker)
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the sweep loop is running
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ReconcileWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SweepAll(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepAll(ctx)
		}
	}
}
