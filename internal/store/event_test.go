package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
)

func inbound(delivery string, receivedAt time.Time) model.InboundEvent {
	return model.InboundEvent{
		EventType:  "issues",
		DeliveryID: delivery,
		RepoName:   "acme/skills",
		Action:     "opened",
		RawBody:    []byte(`{"action":"opened","repository":{"full_name":"acme/skills"}}`),
		ReceivedAt: receivedAt,
	}
}

var _ = Describe("EventStore", func() {
	var (
		ctx    context.Context
		events store.EventStore
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		events = store.NewStores(openTestDB(ctx).Queries()).Events()
		base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	Describe("Append", func() {
		It("stores a pending event", func() {
			ev, created, err := events.Append(ctx, inbound("d-1", base), model.CategoryRepoRequest)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())

			got, err := events.Get(ctx, ev.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.EventStatusPending))
			Expect(got.Category).To(Equal(model.CategoryRepoRequest))
			Expect(got.RetryCount).To(BeZero())
			Expect(got.ReceivedAt.Equal(base)).To(BeTrue())
			Expect(string(got.Payload)).To(ContainSubstring(`"acme/skills"`))
		})

		It("returns the original record for a redelivered delivery id", func() {
			first, _, err := events.Append(ctx, inbound("d-1", base), model.CategoryBug)
			Expect(err).NotTo(HaveOccurred())

			second, created, err := events.Append(ctx, inbound("d-1", base.Add(time.Minute)), model.CategoryBug)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(second.ID).To(Equal(first.ID))
		})

		It("does not dedupe events without a delivery id", func() {
			_, created1, err := events.Append(ctx, inbound("", base), model.CategoryOther)
			Expect(err).NotTo(HaveOccurred())
			_, created2, err := events.Append(ctx, inbound("", base), model.CategoryOther)
			Expect(err).NotTo(HaveOccurred())
			Expect(created1).To(BeTrue())
			Expect(created2).To(BeTrue())
		})
	})

	Describe("status updates", func() {
		var ev *model.StoredEvent

		BeforeEach(func() {
			var err error
			ev, _, err = events.Append(ctx, inbound("d-1", base), model.CategoryBug)
			Expect(err).NotTo(HaveOccurred())
		})

		It("increments the retry count only when asked", func() {
			Expect(events.MarkFailed(ctx, ev.ID, "boom", true)).To(Succeed())
			Expect(events.MarkFailed(ctx, ev.ID, "boom again", false)).To(Succeed())

			got, err := events.Get(ctx, ev.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.EventStatusFailed))
			Expect(got.RetryCount).To(Equal(1))
			Expect(got.LastError).To(HaveValue(Equal("boom again")))
		})

		It("clears the last error on completion", func() {
			Expect(events.MarkFailed(ctx, ev.ID, "boom", true)).To(Succeed())
			Expect(events.MarkCompleted(ctx, ev.ID)).To(Succeed())

			got, err := events.Get(ctx, ev.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.EventStatusCompleted))
			Expect(got.LastError).To(BeNil())
			Expect(got.ProcessedAt).NotTo(BeNil())
		})

		It("takes a terminal event out of the retry set", func() {
			Expect(events.MarkTerminal(ctx, ev.ID, "security: rejected", 3)).To(Succeed())

			got, err := events.Get(ctx, ev.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.EventStatusFailed))
			Expect(got.RetryCount).To(Equal(3))
			Expect(got.Retryable(3)).To(BeFalse())

			n, err := events.CountUnresolved(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("reports unknown ids", func() {
			Expect(events.MarkCompleted(ctx, 42)).To(MatchError(store.ErrNotFound))
			_, err := events.Get(ctx, 42)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("PendingOrRetryable", func() {
		It("returns pending and retryable events oldest first", func() {
			late, _, _ := events.Append(ctx, inbound("late", base.Add(2*time.Second)), model.CategoryBug)
			early, _, _ := events.Append(ctx, inbound("early", base), model.CategoryBug)
			done, _, _ := events.Append(ctx, inbound("done", base.Add(time.Second)), model.CategoryBug)
			exhausted, _, _ := events.Append(ctx, inbound("exhausted", base.Add(time.Second)), model.CategoryBug)
			retry, _, _ := events.Append(ctx, inbound("retry", base.Add(3*time.Second)), model.CategoryBug)

			Expect(events.MarkCompleted(ctx, done.ID)).To(Succeed())
			for i := 0; i < 3; i++ {
				Expect(events.MarkFailed(ctx, exhausted.ID, "x", true)).To(Succeed())
			}
			Expect(events.MarkFailed(ctx, retry.ID, "x", true)).To(Succeed())

			got, err := events.PendingOrRetryable(ctx, 3, 10)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]int64, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			Expect(ids).To(Equal([]int64{early.ID, late.ID, retry.ID}))

			n, err := events.CountUnresolved(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("honors the limit", func() {
			for _, d := range []string{"a", "b", "c"} {
				_, _, err := events.Append(ctx, inbound(d, base), model.CategoryOther)
				Expect(err).NotTo(HaveOccurred())
			}
			got, err := events.PendingOrRetryable(ctx, 3, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
		})
	})

	Describe("Stats", func() {
		It("counts by status and category", func() {
			a, _, _ := events.Append(ctx, inbound("a", base), model.CategoryBug)
			_, _, _ = events.Append(ctx, inbound("b", base), model.CategoryRepoRequest)
			Expect(events.MarkCompleted(ctx, a.ID)).To(Succeed())

			stats, err := events.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(2))
			Expect(stats.ByStatus).To(HaveKeyWithValue(model.EventStatusCompleted, 1))
			Expect(stats.ByStatus).To(HaveKeyWithValue(model.EventStatusPending, 1))
			Expect(stats.ByCategory).To(HaveKeyWithValue(model.CategoryRepoRequest, 1))
			Expect(stats.LastProcessedAt).NotTo(BeNil())
		})
	})
})
