package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/queue"
	"basegraph.app/skillflow/internal/worker"
)

var _ = Describe("Pool", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		events    *memEvents
		processor *fakeProcessor
		backend   *queue.MemoryBackend
		pool      *worker.Pool
		cfg       worker.Config
	)

	newPool := func() *worker.Pool {
		return worker.NewPool(backend, events, processor, cfg)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		events = newMemEvents()
		processor = &fakeProcessor{}
		backend = queue.NewMemoryBackend(10)
		cfg = worker.Config{
			Workers:     2,
			PollTimeout: 10 * time.Millisecond,
			MaxRetries:  3,
			Backoff: queue.Backoff{
				Base:       time.Millisecond,
				Max:        5 * time.Millisecond,
				Multiplier: 2,
				Jitter:     func() float64 { return 0.5 },
			},
		}
		pool = newPool()

		DeferCleanup(func() {
			pool.Stop()
			cancel()
		})
	})

	It("marks processed events completed", func() {
		events.add(model.StoredEvent{ID: 1, Category: model.CategoryBug})
		pool.Start(ctx)

		Expect(pool.Enqueue(ctx, 1, model.CategoryBug)).To(BeTrue())

		Eventually(func() model.EventStatus { return events.snapshot(1).Status }).
			Should(Equal(model.EventStatusCompleted))
		Expect(processor.callCount()).To(Equal(1))
		Expect(processor.abandonCount()).To(BeZero())
		Eventually(func() int64 { return pool.Stats(ctx).Processed }).Should(Equal(int64(1)))
	})

	Context("when processing keeps failing transiently", func() {
		BeforeEach(func() {
			processor.processFn = func(context.Context, *model.StoredEvent) error {
				return errors.New("github unavailable")
			}
		})

		It("stops retrying at the retry bound and abandons once", func() {
			events.add(model.StoredEvent{ID: 7, Category: model.CategoryRepoRequest})
			pool.Start(ctx)
			Expect(pool.Enqueue(ctx, 7, model.CategoryRepoRequest)).To(BeTrue())

			Eventually(processor.abandonCount).Should(Equal(1))
			Consistently(processor.abandonCount, 50*time.Millisecond).Should(Equal(1))

			ev := events.snapshot(7)
			Expect(ev.Status).To(Equal(model.EventStatusFailed))
			Expect(ev.RetryCount).To(Equal(cfg.MaxRetries))
			Expect(ev.LastError).To(HaveValue(Equal("github unavailable")))
			Expect(processor.callCount()).To(Equal(cfg.MaxRetries + 1))

			stats := pool.Stats(ctx)
			Expect(stats.Retried).To(Equal(int64(cfg.MaxRetries)))
			Expect(stats.Abandoned).To(Equal(int64(1)))
			Expect(stats.InFlight).To(BeZero())
		})
	})

	DescribeTable("gives up immediately on non-retryable kinds",
		func(err error) {
			processor.processFn = func(context.Context, *model.StoredEvent) error { return err }
			events.add(model.StoredEvent{ID: 3, Category: model.CategoryFeature})
			pool.Start(ctx)
			Expect(pool.Enqueue(ctx, 3, model.CategoryFeature)).To(BeTrue())

			Eventually(processor.abandonCount).Should(Equal(1))
			Expect(processor.callCount()).To(Equal(1))

			ev := events.snapshot(3)
			Expect(ev.Status).To(Equal(model.EventStatusFailed))
			Expect(ev.RetryCount).To(Equal(cfg.MaxRetries))
			Expect(ev.Retryable(cfg.MaxRetries)).To(BeFalse())
		},
		Entry("security", domain.Security("analyze", errors.New("rm -rf"))),
		Entry("validation", domain.Validation("plan", errors.New("no actions"))),
		Entry("ingestion", domain.Ingestion("decode", errors.New("bad payload"))),
	)

	It("retries after a panic", func() {
		calls := 0
		processor.processFn = func(context.Context, *model.StoredEvent) error {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return nil
		}
		cfg.Workers = 1
		pool = newPool()

		events.add(model.StoredEvent{ID: 4})
		pool.Start(ctx)
		Expect(pool.Enqueue(ctx, 4, model.CategoryOther)).To(BeTrue())

		Eventually(func() model.EventStatus { return events.snapshot(4).Status }).
			Should(Equal(model.EventStatusCompleted))
		Expect(events.snapshot(4).RetryCount).To(Equal(1))
	})

	It("skips events the store already has as completed", func() {
		events.add(model.StoredEvent{ID: 5, Status: model.EventStatusCompleted})
		pool.Start(ctx)
		Expect(pool.Enqueue(ctx, 5, model.CategoryOther)).To(BeTrue())

		Eventually(func() int { return pool.Stats(ctx).InFlight }).Should(BeZero())
		Expect(processor.callCount()).To(BeZero())
	})

	Describe("Enqueue", func() {
		It("refuses an event that is already queued", func() {
			events.add(model.StoredEvent{ID: 1})
			Expect(pool.Enqueue(ctx, 1, model.CategoryOther)).To(BeTrue())
			Expect(pool.Enqueue(ctx, 1, model.CategoryOther)).To(BeFalse())

			n, _ := backend.Len(ctx)
			Expect(n).To(Equal(1))
		})

		It("refuses events beyond the queue capacity", func() {
			backend = queue.NewMemoryBackend(2)
			pool = newPool()

			Expect(pool.Enqueue(ctx, 1, model.CategoryOther)).To(BeTrue())
			Expect(pool.Enqueue(ctx, 2, model.CategoryOther)).To(BeTrue())
			Expect(pool.Enqueue(ctx, 3, model.CategoryOther)).To(BeFalse())

			stats := pool.Stats(ctx)
			Expect(stats.QueueDepth).To(Equal(2))
			Expect(stats.InFlight).To(Equal(2))

			// a refused event is not remembered as in flight
			_, _ = backend.Pop(ctx, time.Millisecond)
			Expect(pool.Enqueue(ctx, 3, model.CategoryOther)).To(BeTrue())
		})

		It("refuses everything once stopped", func() {
			pool.Stop()
			Expect(pool.Enqueue(ctx, 1, model.CategoryOther)).To(BeFalse())
		})
	})

	It("cancels pending retries on stop", func() {
		cfg.Backoff = queue.Backoff{Base: time.Hour, Multiplier: 1, Jitter: func() float64 { return 0.5 }}
		pool = newPool()
		processor.processFn = func(context.Context, *model.StoredEvent) error {
			return errors.New("timeout")
		}

		events.add(model.StoredEvent{ID: 8})
		pool.Start(ctx)
		Expect(pool.Enqueue(ctx, 8, model.CategoryOther)).To(BeTrue())

		Eventually(func() int { return events.snapshot(8).RetryCount }).Should(Equal(1))
		pool.Stop()

		Expect(pool.Stats(ctx).InFlight).To(BeZero())
		ev := events.snapshot(8)
		Expect(ev.Status).To(Equal(model.EventStatusFailed))
		Expect(ev.Retryable(cfg.MaxRetries)).To(BeTrue())
		Expect(processor.abandonCount()).To(BeZero())
	})
})

var _ = Describe("Reconciler", func() {
	var (
		ctx     context.Context
		events  *memEvents
		backend *queue.MemoryBackend
		pool    *worker.Pool
	)

	BeforeEach(func() {
		ctx = context.Background()
		events = newMemEvents()
		backend = queue.NewMemoryBackend(10)
		pool = worker.NewPool(backend, events, &fakeProcessor{}, worker.Config{MaxRetries: 3})
	})

	It("enqueues unresolved events and skips the ones in flight", func() {
		events.add(model.StoredEvent{ID: 1})
		events.add(model.StoredEvent{ID: 2, Status: model.EventStatusCompleted})
		events.add(model.StoredEvent{ID: 3, Status: model.EventStatusFailed, RetryCount: 1})
		events.add(model.StoredEvent{ID: 4, Status: model.EventStatusFailed, RetryCount: 3})
		events.add(model.StoredEvent{ID: 5})

		Expect(pool.Enqueue(ctx, 5, model.CategoryOther)).To(BeTrue())

		r := worker.NewReconciler(events, pool, backend, worker.ReconcilerConfig{MaxRetries: 3})
		enqueued, skipped, err := r.ReconcileOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(enqueued).To(Equal(2))
		Expect(skipped).To(Equal(1))

		var ids []int64
		for {
			msg, err := backend.Pop(ctx, time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			if msg == nil {
				break
			}
			ids = append(ids, msg.EventID)
		}
		Expect(ids).To(Equal([]int64{5, 1, 3}))
	})

	It("reconciles on start and stops cleanly", func() {
		events.add(model.StoredEvent{ID: 9})

		r := worker.NewReconciler(events, pool, backend, worker.ReconcilerConfig{MaxRetries: 3, Interval: time.Hour})
		go r.Run(ctx)

		Eventually(func() int { n, _ := backend.Len(ctx); return n }).Should(Equal(1))
		r.Stop()
	})
})
