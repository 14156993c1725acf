package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/queue"
	"basegraph.app/skillflow/internal/store"
)

type ReconcilerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// MinIdle is how long a backend entry may stay unacked before it is
	// treated as abandoned by its consumer.
	MinIdle time.Duration
}

// Reconciler re-enqueues events that are unresolved in the store but not
// queued: events whose enqueue hit a full queue, retries cancelled by a
// shutdown, and anything lost with a crashed process.
type Reconciler struct {
	events  store.EventStore
	pool    Enqueuer
	backend queue.Backend
	cfg     ReconcilerConfig

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReconciler(events store.EventStore, pool Enqueuer, backend queue.Backend, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 5 * time.Minute
	}
	return &Reconciler{
		events:    events,
		pool:      pool,
		backend:   backend,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run reconciles once immediately and then on every interval until ctx is
// done or Stop is called.
func (r *Reconciler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "skillflow.worker.reconciler",
	})
	defer close(r.stoppedCh)

	slog.InfoContext(ctx, "reconciler started",
		"interval", r.cfg.Interval,
		"batch_size", r.cfg.BatchSize)

	r.cycle(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reconciler stopping")
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// Stop must only be called after Run has been started.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.stoppedCh
}

func (r *Reconciler) cycle(ctx context.Context) {
	if reclaimer, ok := r.backend.(queue.Reclaimer); ok {
		dropped, err := reclaimer.ReclaimStale(ctx, r.cfg.MinIdle)
		if err != nil {
			slog.ErrorContext(ctx, "reclaiming stale queue entries failed", "error", err)
		} else if dropped > 0 {
			slog.InfoContext(ctx, "dropped stale queue entries", "count", dropped)
		}
	}

	enqueued, skipped, err := r.ReconcileOnce(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reconcile cycle error", "error", err)
		return
	}
	if enqueued > 0 || skipped > 0 {
		slog.InfoContext(ctx, "reconciled unresolved events",
			"enqueued", enqueued,
			"skipped", skipped)
	}
}

// ReconcileOnce enqueues one batch of pending or retryable events. Events
// already in flight count as skipped.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (enqueued, skipped int, err error) {
	events, err := r.events.PendingOrRetryable(ctx, r.cfg.MaxRetries, r.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("listing unresolved events: %w", err)
	}

	for _, ev := range events {
		if r.pool.Enqueue(ctx, ev.ID, ev.Category) {
			enqueued++
		} else {
			skipped++
		}
	}
	return enqueued, skipped, nil
}
