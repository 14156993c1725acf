package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/planner"
	"basegraph.app/skillflow/internal/store"
)

var _ = Describe("IssueStore", func() {
	var (
		ctx    context.Context
		issues store.IssueStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		issues = store.NewStores(openTestDB(ctx).Queries()).Issues()
	})

	It("upserts by number without touching the processing status", func() {
		_, err := issues.Upsert(ctx, &model.IssueRecord{Number: 7, Title: "Add repo", Labels: []string{"repo-request"}, State: "open"})
		Expect(err).NotTo(HaveOccurred())

		Expect(issues.Transition(ctx, 7, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing})).To(Succeed())

		got, err := issues.Upsert(ctx, &model.IssueRecord{Number: 7, Title: "Add repo (edited)", State: "open"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("Add repo (edited)"))
		Expect(got.Labels).To(BeEmpty())
		Expect(got.ProcessingStatus).To(Equal(model.IssueStatusAnalyzing))
	})

	It("records rejection details", func() {
		_, err := issues.Upsert(ctx, &model.IssueRecord{Number: 1, Title: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(issues.Transition(ctx, 1, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing})).To(Succeed())

		sev := model.SeverityCritical
		reason := "destructive shell command"
		Expect(issues.Transition(ctx, 1, store.IssueTransition{
			From: model.IssueStatusAnalyzing, To: model.IssueStatusRejected,
			FilterReason: &reason, Severity: &sev,
		})).To(Succeed())

		got, err := issues.Get(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ProcessingStatus).To(Equal(model.IssueStatusRejected))
		Expect(got.FilterReason).To(HaveValue(Equal(reason)))
		Expect(got.Severity).To(HaveValue(Equal(model.SeverityCritical)))
	})

	It("refuses transitions out of rejected", func() {
		_, err := issues.Upsert(ctx, &model.IssueRecord{Number: 2, Title: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(issues.Transition(ctx, 2, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing})).To(Succeed())
		Expect(issues.Transition(ctx, 2, store.IssueTransition{From: model.IssueStatusAnalyzing, To: model.IssueStatusRejected})).To(Succeed())

		err = issues.Transition(ctx, 2, store.IssueTransition{From: model.IssueStatusRejected, To: model.IssueStatusAnalyzing})
		Expect(err).To(MatchError(store.ErrInvalidTransition))
	})

	It("refuses a transition when the stored status moved on", func() {
		_, err := issues.Upsert(ctx, &model.IssueRecord{Number: 3, Title: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(issues.Transition(ctx, 3, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing})).To(Succeed())

		err = issues.Transition(ctx, 3, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing})
		Expect(err).To(MatchError(store.ErrInvalidTransition))
	})
})

var _ = Describe("PullRequestStore", func() {
	It("stores validation output with the status", func() {
		ctx := context.Background()
		prs := store.NewStores(openTestDB(ctx).Queries()).PullRequests()

		_, err := prs.Upsert(ctx, &model.PRRecord{Number: 11, Title: "Add skill", HeadSHA: "abc", State: "open", Labels: []string{"auto-merge"}})
		Expect(err).NotTo(HaveOccurred())

		Expect(prs.Transition(ctx, 11, store.PRTransition{
			From: model.PRStatusPending, To: model.PRStatusRejected,
			ValidationErrors: []string{"skills/foo: missing README.md"},
		})).To(Succeed())

		got, err := prs.Get(ctx, 11)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ProcessingStatus).To(Equal(model.PRStatusRejected))
		Expect(got.ValidationErrors).To(ConsistOf("skills/foo: missing README.md"))
		Expect(got.ContentHashes).To(BeEmpty())
		Expect(got.HasLabel("Auto-Merge")).To(BeTrue())
	})
})

var _ = Describe("PlanStore", func() {
	var (
		ctx    context.Context
		stores *store.Stores
		plan   *model.UpdatePlan
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = store.NewStores(openTestDB(ctx).Queries())
		plan = &model.UpdatePlan{
			PlanID:          "plan-1",
			PlanType:        model.PlanTypeBatch,
			SourceIssue:     12,
			ReposToAdd:      []string{"foo/bar"},
			TermsToAdd:      []string{"agents"},
			ConfigUpdates:   map[string]any{"max_results": float64(50)},
			Priority:        6,
			ExecutionStatus: model.ExecutionStatusPending,
			CreatedAt:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		}
		Expect(stores.Plans().Create(ctx, plan)).To(Succeed())
	})

	It("round-trips the plan", func() {
		got, err := stores.Plans().Get(ctx, "plan-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ReposToAdd).To(Equal(plan.ReposToAdd))
		Expect(got.ConfigUpdates).To(Equal(plan.ConfigUpdates))
		Expect(got.CreatedAt.Equal(plan.CreatedAt)).To(BeTrue())

		ok, errs := planner.Validate(got)
		Expect(ok).To(BeTrue(), "validation errors: %v", errs)

		latest, err := stores.Plans().LatestForIssue(ctx, 12)
		Expect(err).NotTo(HaveOccurred())
		Expect(latest.PlanID).To(Equal("plan-1"))
	})

	It("freezes a completed plan", func() {
		executed := time.Now().UTC()
		plan.ExecutionStatus = model.ExecutionStatusCompleted
		plan.ExecutedAt = &executed
		Expect(stores.Plans().Save(ctx, plan)).To(Succeed())

		plan.ReposToAdd = append(plan.ReposToAdd, "evil/repo")
		Expect(stores.Plans().Save(ctx, plan)).To(MatchError(store.ErrPlanImmutable))

		got, err := stores.Plans().Get(ctx, "plan-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ReposToAdd).To(Equal([]string{"foo/bar"}))
		Expect(got.ExecutionStatus).To(Equal(model.ExecutionStatusCompleted))
	})

	It("decodes string lists in details as []string", func() {
		details := map[string]any{
			"repos_added": []string{"foo/bar"},
			"terms_added": []string{},
			"failed_step": "add terms",
		}
		plan.ExecutionStatus = model.ExecutionStatusFailed
		plan.Details = details
		Expect(stores.Plans().Save(ctx, plan)).To(Succeed())
		Expect(stores.ExecutionResults().Create(ctx, &model.ExecutionResult{PlanID: "plan-1", Details: details})).To(Succeed())

		got, err := stores.Plans().Get(ctx, "plan-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Details).To(Equal(details))

		results, err := stores.ExecutionResults().ListByPlan(ctx, "plan-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Details).To(Equal(details))
	})

	It("keeps one result per attempt", func() {
		msg := "mutator unavailable"
		Expect(stores.ExecutionResults().Create(ctx, &model.ExecutionResult{PlanID: "plan-1", Success: false, Error: &msg})).To(Succeed())
		Expect(stores.ExecutionResults().Create(ctx, &model.ExecutionResult{PlanID: "plan-1", Success: true, Details: map[string]any{"added_repos": []any{"foo/bar"}}})).To(Succeed())

		results, err := stores.ExecutionResults().ListByPlan(ctx, "plan-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Success).To(BeFalse())
		Expect(results[0].Error).To(HaveValue(Equal(msg)))
		Expect(results[1].Success).To(BeTrue())
		Expect(results[1].Details).To(HaveKey("added_repos"))
	})

	It("reports missing plans", func() {
		_, err := stores.Plans().Get(ctx, "nope")
		Expect(err).To(MatchError(store.ErrNotFound))
		_, err = stores.Plans().LatestForIssue(ctx, 999)
		Expect(err).To(MatchError(store.ErrNotFound))
	})
})

var _ = Describe("ContentIndex", func() {
	It("adds hashes idempotently", func() {
		ctx := context.Background()
		index := store.NewStores(openTestDB(ctx).Queries()).Content()

		ok, err := index.Contains(ctx, "abc")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(index.Add(ctx, model.TrackedContent{Hash: "abc", Path: "skills/foo", PRNumber: 3})).To(Succeed())
		Expect(index.Add(ctx, model.TrackedContent{Hash: "abc", Path: "skills/bar", PRNumber: 4})).To(Succeed())

		ok, err = index.Contains(ctx, "abc")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("transactions", func() {
	It("rolls back every store on error", func() {
		ctx := context.Background()
		database := openTestDB(ctx)

		err := database.WithTx(ctx, func(q *sqlc.Queries) error {
			stores := store.NewStores(q)
			if _, err := stores.Issues().Upsert(ctx, &model.IssueRecord{Number: 5, Title: "tx"}); err != nil {
				return err
			}
			return store.ErrInvalidTransition
		})
		Expect(err).To(MatchError(store.ErrInvalidTransition))

		_, err = store.NewStores(database.Queries()).Issues().Get(ctx, 5)
		Expect(err).To(MatchError(store.ErrNotFound))
	})
})
