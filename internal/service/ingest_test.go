package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/service"
	"basegraph.app/skillflow/internal/store"
)

var _ = Describe("IngestService", func() {
	var (
		ctx      context.Context
		stores   *store.Stores
		enqueuer *fakeEnqueuer
		ingest   service.IngestService
	)

	BeforeEach(func() {
		ctx = context.Background()
		_, stores = openStores(ctx)
		enqueuer = &fakeEnqueuer{accept: true}
		ingest = service.NewIngestService(stores.Events(), enqueuer)
	})

	delivery := func(id string) model.InboundEvent {
		payload := issuePayload("opened", 7, "Add repository", "https://github.com/foo/bar", "repo-request")
		return model.InboundEvent{
			EventType:  "issues",
			DeliveryID: id,
			RepoName:   "acme/skills",
			Action:     "opened",
			Payload:    payload,
			RawBody:    []byte(`{"action":"opened","issue":{"number":7,"labels":[{"name":"repo-request"}]}}`),
			ReceivedAt: time.Now().UTC(),
		}
	}

	It("stores, categorizes and enqueues a new delivery", func() {
		res, err := ingest.Ingest(ctx, delivery("d-1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Duplicate).To(BeFalse())
		Expect(res.Enqueued).To(BeTrue())
		Expect(res.Event.Category).To(Equal(model.CategoryRepoRequest))
		Expect(enqueuer.ids).To(ConsistOf(res.Event.ID))
	})

	It("dedupes a redelivery by delivery id", func() {
		first, err := ingest.Ingest(ctx, delivery("d-1"))
		Expect(err).NotTo(HaveOccurred())

		second, err := ingest.Ingest(ctx, delivery("d-1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Duplicate).To(BeTrue())
		Expect(second.Event.ID).To(Equal(first.Event.ID))
		Expect(enqueuer.ids).To(HaveLen(1))
	})

	It("keeps the event pending when the queue is full", func() {
		enqueuer.accept = false

		res, err := ingest.Ingest(ctx, delivery("d-2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Enqueued).To(BeFalse())

		stored, err := stores.Events().Get(ctx, res.Event.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(model.EventStatusPending))
	})
})
