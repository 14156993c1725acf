package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/service"
)

var _ = Describe("Dispatcher", func() {
	var (
		issues, prs, activity *recordingProcessor
		dispatcher            *service.Dispatcher
	)

	BeforeEach(func() {
		issues, prs, activity = &recordingProcessor{}, &recordingProcessor{}, &recordingProcessor{}
		dispatcher = service.NewDispatcher(issues, prs, activity)
	})

	DescribeTable("routes by category",
		func(eventType string, category model.Category, want func() *recordingProcessor) {
			ev := &model.StoredEvent{ID: 9, EventType: eventType, Category: category, Payload: []byte(`{}`)}
			Expect(dispatcher.Process(context.Background(), ev)).To(Succeed())
			Expect(want().processed).To(ConsistOf(int64(9)))
		},
		Entry("repo request", "issues", model.CategoryRepoRequest, func() *recordingProcessor { return issues }),
		Entry("bug", "issues", model.CategoryBug, func() *recordingProcessor { return issues }),
		Entry("feature", "issue_comment", model.CategoryFeature, func() *recordingProcessor { return issues }),
		Entry("unlabeled issue", "issues", model.CategoryOther, func() *recordingProcessor { return issues }),
		Entry("pull request", "pull_request", model.CategorySkillSubmission, func() *recordingProcessor { return prs }),
		Entry("review", "pull_request_review", model.CategorySkillSubmission, func() *recordingProcessor { return prs }),
		Entry("push", "push", model.CategoryOther, func() *recordingProcessor { return activity }),
	)

	It("hands abandoned events to the owning processor", func() {
		ev := &model.StoredEvent{ID: 3, EventType: "pull_request", Category: model.CategorySkillSubmission}
		dispatcher.Abandon(context.Background(), ev, errors.New("boom"))
		Expect(prs.abandoned).To(ConsistOf(int64(3)))
		Expect(issues.abandoned).To(BeEmpty())
	})

	It("refuses an unknown category without retry", func() {
		ev := &model.StoredEvent{ID: 4, EventType: "issues", Category: model.Category("mystery")}
		err := dispatcher.Process(context.Background(), ev)
		Expect(domain.IsKind(err, domain.KindValidation)).To(BeTrue())
		Expect(domain.KindOf(err).Retryable()).To(BeFalse())
	})
})

var _ = Describe("ActivityProcessor", func() {
	It("accepts push, release and unknown events", func() {
		proc := service.NewActivityProcessor()
		ctx := context.Background()

		push := storedEvent(1, "push", model.CategoryOther, map[string]any{
			"ref":     "refs/heads/main",
			"after":   "abc",
			"commits": []map[string]any{{"id": "abc", "message": "update"}},
		})
		release := storedEvent(2, "release", model.CategoryOther, map[string]any{
			"action":  "published",
			"release": map[string]any{"tag_name": "v1.0.0", "name": "First"},
		})
		unknown := storedEvent(3, "star", model.CategoryOther, map[string]any{"action": "created"})

		Expect(proc.Process(ctx, push)).To(Succeed())
		Expect(proc.Process(ctx, release)).To(Succeed())
		Expect(proc.Process(ctx, unknown)).To(Succeed())
	})

	It("reports an undecodable push as an ingestion error", func() {
		ev := &model.StoredEvent{ID: 1, EventType: "push", Category: model.CategoryOther, Payload: []byte(`{"commits":"nope"}`)}
		err := service.NewActivityProcessor().Process(context.Background(), ev)
		Expect(domain.IsKind(err, domain.KindIngestion)).To(BeTrue())
	})
})
