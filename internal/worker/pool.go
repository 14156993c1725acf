package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/queue"
	"basegraph.app/skillflow/internal/store"
)

type Config struct {
	Workers     int
	PollTimeout time.Duration
	MaxRetries  int
	Backoff     queue.Backoff
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	InFlight   int   `json:"in_flight"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
	Abandoned  int64 `json:"abandoned"`
}

// Pool runs a fixed number of workers over a queue backend. The backend only
// carries event ids; every attempt starts from the event as stored.
type Pool struct {
	backend   queue.Backend
	events    store.EventStore
	processor Processor
	cfg       Config

	mu sync.Mutex
	// queued, waiting on a retry timer, or being processed
	inflight map[int64]struct{}
	active   map[int64]struct{}
	timers   map[int64]*time.Timer
	stopped  bool

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	abandoned atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewPool(backend queue.Backend, events store.EventStore, processor Processor, cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &Pool{
		backend:   backend,
		events:    events,
		processor: processor,
		cfg:       cfg,
		inflight:  make(map[int64]struct{}),
		active:    make(map[int64]struct{}),
		timers:    make(map[int64]*time.Timer),
		stopCh:    make(chan struct{}),
	}
}

// Enqueue schedules an event for processing. It returns false when the queue
// is full, when the event is already queued or being worked on, or when the
// pool has stopped.
func (p *Pool) Enqueue(ctx context.Context, eventID int64, category model.Category) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	if _, ok := p.inflight[eventID]; ok {
		p.mu.Unlock()
		return false
	}
	p.inflight[eventID] = struct{}{}
	p.mu.Unlock()

	msg := queue.Message{
		EventID:  eventID,
		Category: category,
		TraceID:  logger.TraceIDFromContext(ctx),
	}
	ok, err := p.backend.Push(ctx, msg)
	if err != nil || !ok {
		p.release(eventID)
		if err != nil {
			slog.ErrorContext(ctx, "enqueue failed", "error", err, "event_id", eventID)
		} else {
			slog.WarnContext(ctx, "queue full, event left for reconciliation", "event_id", eventID)
		}
		return false
	}
	return true
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "skillflow.worker.pool"})
		slog.InfoContext(ctx, "worker pool starting",
			"workers", p.cfg.Workers,
			"max_retries", p.cfg.MaxRetries)

		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}
	})
}

// Stop waits for every worker to finish its current event and cancels
// pending retries. Their events stay failed in the store until the
// reconciler picks them up again.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		for id, t := range p.timers {
			t.Stop()
			delete(p.timers, id)
			delete(p.inflight, id)
		}
		p.mu.Unlock()

		close(p.stopCh)
		p.wg.Wait()
	})
}

func (p *Pool) Stats(ctx context.Context) Stats {
	depth, err := p.backend.Len(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reading queue depth failed", "error", err)
	}

	p.mu.Lock()
	inflight := len(p.inflight)
	p.mu.Unlock()

	return Stats{
		Workers:    p.cfg.Workers,
		QueueDepth: depth,
		InFlight:   inflight,
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Retried:    p.retried.Load(),
		Abandoned:  p.abandoned.Load(),
	}
}

func (p *Pool) run(ctx context.Context, n int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		msg, err := p.backend.Pop(ctx, p.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				return
			}
			slog.ErrorContext(ctx, "queue read failed", "error", err, "worker", n)
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(p.cfg.PollTimeout):
			}
			continue
		}
		if msg == nil {
			continue
		}

		p.handle(ctx, *msg)
	}
}

func (p *Pool) handle(ctx context.Context, msg queue.Message) {
	defer func() {
		if err := p.backend.Ack(ctx, msg); err != nil {
			slog.WarnContext(ctx, "ack failed", "error", err, "event_id", msg.EventID)
		}
	}()

	if !p.claim(msg.EventID) {
		slog.DebugContext(ctx, "event already being processed, dropping duplicate", "event_id", msg.EventID)
		return
	}
	defer p.unclaim(msg.EventID)

	eventID := msg.EventID
	attempt := msg.Attempt
	category := string(msg.Category)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:  &eventID,
		Category: &category,
		Attempt:  &attempt,
	})

	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.String("event.category", category),
			attribute.Int("event.attempt", attempt),
		))
	defer sc.End()
	ctx = sc.Context()

	ev, err := p.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "queued event not found in store")
		} else {
			// still unresolved in the store; reconciliation brings it back
			slog.ErrorContext(ctx, "loading event failed", "error", err)
			sc.RecordError(err)
		}
		p.release(eventID)
		return
	}

	eventType := ev.EventType
	ctx = logger.WithLogFields(ctx, logger.LogFields{EventType: &eventType})

	switch {
	case ev.Status == model.EventStatusCompleted:
		slog.InfoContext(ctx, "event already completed, skipping")
		p.release(eventID)
		return
	case ev.Status == model.EventStatusFailed && !ev.Retryable(p.cfg.MaxRetries) && msg.Attempt < ev.RetryCount:
		// the final scheduled retry carries attempt == retry count; anything
		// older is a stale copy of an abandoned event
		slog.InfoContext(ctx, "event already abandoned, skipping", "retry_count", ev.RetryCount)
		p.release(eventID)
		return
	}

	start := time.Now()
	procErr := p.processSafe(ctx, ev)
	if procErr == nil {
		if err := p.events.MarkCompleted(ctx, eventID); err != nil {
			slog.ErrorContext(ctx, "marking event completed failed", "error", err)
			sc.RecordError(err)
		}
		p.processed.Add(1)
		p.release(eventID)
		slog.InfoContext(ctx, "event processed", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	sc.RecordError(procErr)
	p.failed.Add(1)
	p.fail(ctx, ev, procErr)
}

// fail records a failed attempt and either schedules the next one or gives
// the event up.
func (p *Pool) fail(ctx context.Context, ev *model.StoredEvent, cause error) {
	kind := domain.KindOf(cause)

	if kind.Retryable() && ev.RetryCount < p.cfg.MaxRetries {
		if err := p.events.MarkFailed(ctx, ev.ID, cause.Error(), true); err != nil {
			slog.ErrorContext(ctx, "marking event failed", "error", err)
			p.release(ev.ID)
			return
		}

		delay := p.cfg.Backoff.Delay(ev.RetryCount)
		slog.WarnContext(ctx, "event failed, retry scheduled",
			"error", cause,
			"kind", kind.String(),
			"retry_count", ev.RetryCount+1,
			"delay_ms", delay.Milliseconds())
		p.scheduleRetry(ctx, ev, ev.RetryCount+1, delay)
		return
	}

	var err error
	if kind.Retryable() {
		err = p.events.MarkFailed(ctx, ev.ID, cause.Error(), false)
	} else {
		err = p.events.MarkTerminal(ctx, ev.ID, cause.Error(), p.cfg.MaxRetries)
	}
	if err != nil {
		slog.ErrorContext(ctx, "marking event abandoned", "error", err)
	}

	slog.ErrorContext(ctx, "event abandoned",
		"error", cause,
		"kind", kind.String(),
		"retry_count", ev.RetryCount)
	p.abandoned.Add(1)
	p.abandonSafe(ctx, ev, cause)
	p.release(ev.ID)
}

func (p *Pool) scheduleRetry(ctx context.Context, ev *model.StoredEvent, attempt int, delay time.Duration) {
	msg := queue.Message{
		EventID:  ev.ID,
		Category: ev.Category,
		Attempt:  attempt,
		TraceID:  logger.TraceIDFromContext(ctx),
	}
	// outlives the worker's context; log fields carry over
	retryCtx := context.WithoutCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		delete(p.inflight, ev.ID)
		return
	}

	p.timers[ev.ID] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, ev.ID)
		stopped := p.stopped
		p.mu.Unlock()
		if stopped {
			return
		}

		ok, err := p.backend.Push(retryCtx, msg)
		if err != nil || !ok {
			p.release(ev.ID)
			slog.WarnContext(retryCtx, "retry not queued, event left for reconciliation", "error", err)
			return
		}
		p.retried.Add(1)
	})
}

func (p *Pool) processSafe(ctx context.Context, ev *model.StoredEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in event processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processor.Process(ctx, ev)
}

func (p *Pool) abandonSafe(ctx context.Context, ev *model.StoredEvent, cause error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in abandon hook", "panic", r)
		}
	}()
	p.processor.Abandon(ctx, ev, cause)
}

func (p *Pool) claim(eventID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[eventID]; ok {
		return false
	}
	p.active[eventID] = struct{}{}
	// entries left in a shared backend by an earlier run were never enqueued here
	p.inflight[eventID] = struct{}{}
	return true
}

func (p *Pool) unclaim(eventID int64) {
	p.mu.Lock()
	delete(p.active, eventID)
	p.mu.Unlock()
}

func (p *Pool) release(eventID int64) {
	p.mu.Lock()
	delete(p.inflight, eventID)
	p.mu.Unlock()
}
