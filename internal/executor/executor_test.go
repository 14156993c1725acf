package executor_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/core/db"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/executor"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/tracking"
)

// countingMutator wraps a real FileMutator, counting calls and optionally
// failing a named operation.
type countingMutator struct {
	tracking.Mutator

	mu     sync.Mutex
	calls  map[string]int
	failOn string
}

func (m *countingMutator) hit(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if m.failOn == op {
		return errors.New("disk full")
	}
	return nil
}

func (m *countingMutator) AddRepos(ctx context.Context, repos []string) ([]string, error) {
	if err := m.hit("AddRepos"); err != nil {
		return nil, err
	}
	return m.Mutator.AddRepos(ctx, repos)
}

func (m *countingMutator) AddSearchTerms(ctx context.Context, terms []string) ([]string, error) {
	if err := m.hit("AddSearchTerms"); err != nil {
		return nil, err
	}
	return m.Mutator.AddSearchTerms(ctx, terms)
}

func (m *countingMutator) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

var _ = Describe("Executor", func() {
	var (
		ctx     context.Context
		stores  *store.Stores
		state   *tracking.FileMutator
		mutator *countingMutator
		exec    *executor.Executor
		plan    *model.UpdatePlan
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir := GinkgoT().TempDir()

		database, err := db.New(ctx, db.Config{Driver: db.SQLite, DSN: "file:" + filepath.Join(dir, "exec.db")})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(database.Close)
		Expect(database.Migrate(ctx)).To(Succeed())

		stores = store.NewStores(database.Queries())
		state = tracking.NewFileMutator(filepath.Join(dir, "tracking.yaml"))
		mutator = &countingMutator{Mutator: state, calls: map[string]int{}}
		exec = executor.New(stores.Plans(), stores.ExecutionResults(), mutator)

		plan = &model.UpdatePlan{
			PlanID:          "plan-1",
			PlanType:        model.PlanTypeBatch,
			SourceIssue:     42,
			ReposToAdd:      []string{"foo/bar"},
			TermsToAdd:      []string{"agents"},
			Priority:        5,
			ExecutionStatus: model.ExecutionStatusPending,
			CreatedAt:       time.Now().UTC(),
		}
		Expect(stores.Plans().Create(ctx, plan)).To(Succeed())
	})

	It("applies the plan and records one result", func() {
		result, err := exec.Execute(ctx, plan)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Details).To(HaveKeyWithValue(executor.DetailReposAdded, []string{"foo/bar"}))
		Expect(result.Details).To(HaveKeyWithValue(executor.DetailTermsAdded, []string{"agents"}))

		saved, err := stores.Plans().Get(ctx, plan.PlanID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.ExecutionStatus).To(Equal(model.ExecutionStatusCompleted))
		Expect(saved.ExecutedAt).NotTo(BeNil())

		tracked, err := state.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(tracked.Repositories).To(ConsistOf("foo/bar"))
		Expect(tracked.SearchTerms).To(ConsistOf("agents"))

		results, err := stores.ExecutionResults().ListByPlan(ctx, plan.PlanID)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
	})

	It("is idempotent once completed", func() {
		first, err := exec.Execute(ctx, plan)
		Expect(err).NotTo(HaveOccurred())
		calls := mutator.total()

		// a stale copy of the plan still reads as pending
		stale := *plan
		stale.ExecutionStatus = model.ExecutionStatusPending

		second, err := exec.Execute(ctx, &stale)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Success).To(BeTrue())
		Expect(second.Message).To(Equal("plan already completed"))
		Expect(second.Details).To(Equal(first.Details))
		Expect(second.Details[executor.DetailReposAdded]).To(Equal([]string{"foo/bar"}))
		Expect(second.ExecutedAt).To(BeTemporally("~", first.ExecutedAt, time.Second))
		Expect(mutator.total()).To(Equal(calls))

		results, err := stores.ExecutionResults().ListByPlan(ctx, plan.PlanID)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Details).To(Equal(first.Details))
	})

	It("records partial progress when a step fails", func() {
		mutator.failOn = "AddSearchTerms"

		result, err := exec.Execute(ctx, plan)
		Expect(err).To(HaveOccurred())
		Expect(domain.KindOf(err)).To(Equal(domain.KindTransient))
		Expect(result.Success).To(BeFalse())
		Expect(result.Error).NotTo(BeNil())
		Expect(*result.Error).To(ContainSubstring("disk full"))
		Expect(result.Details).To(HaveKeyWithValue(executor.DetailReposAdded, []string{"foo/bar"}))
		Expect(result.Details).To(HaveKeyWithValue(executor.DetailFailedStep, "add terms"))

		saved, err := stores.Plans().Get(ctx, plan.PlanID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.ExecutionStatus).To(Equal(model.ExecutionStatusFailed))

		By("retrying after the failure clears")
		mutator.failOn = ""
		result, err = exec.Execute(ctx, plan)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		// the repo was added on the first attempt; set semantics make the retry a no-op for it
		Expect(result.Details).To(HaveKeyWithValue(executor.DetailReposAdded, []string{}))

		results, err := stores.ExecutionResults().ListByPlan(ctx, plan.PlanID)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Success).To(BeFalse())
		Expect(results[1].Success).To(BeTrue())
	})

	It("persists a plan it has not seen before", func() {
		fresh := &model.UpdatePlan{
			PlanID:      "plan-2",
			PlanType:    model.PlanTypeAddRepos,
			SourceIssue: 7,
			ReposToAdd:  []string{"a/b"},
			Priority:    5,
			CreatedAt:   time.Now().UTC(),
		}

		_, err := exec.Execute(ctx, fresh)
		Expect(err).NotTo(HaveOccurred())

		saved, err := stores.Plans().Get(ctx, "plan-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.ExecutionStatus).To(Equal(model.ExecutionStatusCompleted))
	})
})
