package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/tracking"
)

const alreadyCompleted = "plan already completed"

// Detail keys recorded on the plan and on every execution result.
const (
	DetailReposAdded    = "repos_added"
	DetailReposRemoved  = "repos_removed"
	DetailTermsAdded    = "terms_added"
	DetailTermsRemoved  = "terms_removed"
	DetailConfigChanged = "config_changed"
	DetailFailedStep    = "failed_step"
)

// Executor applies update plans to the tracked state.
type Executor struct {
	plans   store.PlanStore
	results store.ExecutionResultStore
	mutator tracking.Mutator
	now     func() time.Time
}

func New(plans store.PlanStore, results store.ExecutionResultStore, mutator tracking.Mutator) *Executor {
	return &Executor{
		plans:   plans,
		results: results,
		mutator: mutator,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type step struct {
	name string
	key  string
	run  func(ctx context.Context) ([]string, error)
}

// Execute runs a plan once. A plan that already completed is not touched
// again: the result of its successful run is returned instead. Every other
// call records exactly one ExecutionResult.
func (e *Executor) Execute(ctx context.Context, plan *model.UpdatePlan) (model.ExecutionResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{PlanID: &plan.PlanID, Component: "skillflow.executor"})

	stored, err := e.plans.Get(ctx, plan.PlanID)
	switch {
	case err == nil:
		if stored.ExecutionStatus == model.ExecutionStatusCompleted {
			*plan = *stored
		}
	case errors.Is(err, store.ErrNotFound):
		// executing an unsaved plan; persist it first so results have a parent
		if plan.ExecutionStatus == "" {
			plan.ExecutionStatus = model.ExecutionStatusPending
		}
		if err := e.plans.Create(ctx, plan); err != nil {
			return model.ExecutionResult{}, domain.FatalStore("creating plan", err)
		}
	default:
		return model.ExecutionResult{}, domain.FatalStore("loading plan", err)
	}

	if plan.ExecutionStatus == model.ExecutionStatusCompleted {
		slog.InfoContext(ctx, "plan already completed, returning cached result")
		return cachedResult(plan), nil
	}

	plan.ExecutionStatus = model.ExecutionStatusExecuting
	if err := e.plans.Save(ctx, plan); err != nil {
		return model.ExecutionResult{}, domain.FatalStore("marking plan executing", err)
	}

	details := make(map[string]any)
	failedStep, stepErr := e.runSteps(ctx, plan, details)

	ts := e.now()
	result := model.ExecutionResult{
		PlanID:     plan.PlanID,
		ExecutedAt: ts,
		Details:    details,
	}

	if stepErr != nil {
		details[DetailFailedStep] = failedStep
		msg := stepErr.Error()
		result.Success = false
		result.Message = fmt.Sprintf("plan execution failed at %s", failedStep)
		result.Error = &msg

		plan.ExecutionStatus = model.ExecutionStatusFailed
		plan.Details = details

		slog.WarnContext(ctx, "plan execution failed", "step", failedStep, "error", stepErr)
	} else {
		result.Success = true
		result.Message = summarize(details)

		plan.ExecutionStatus = model.ExecutionStatusCompleted
		plan.ExecutedAt = &ts
		plan.Details = details

		slog.InfoContext(ctx, "plan executed", "message", result.Message)
	}

	if err := e.plans.Save(ctx, plan); err != nil {
		return result, domain.FatalStore("saving plan outcome", err)
	}
	if err := e.results.Create(ctx, &result); err != nil {
		return result, domain.FatalStore("recording execution result", err)
	}

	if stepErr != nil {
		return result, domain.Transient("executing plan "+plan.PlanID, stepErr)
	}
	return result, nil
}

func (e *Executor) runSteps(ctx context.Context, plan *model.UpdatePlan, details map[string]any) (string, error) {
	steps := []step{
		{name: "add repos", key: DetailReposAdded, run: func(ctx context.Context) ([]string, error) {
			return e.mutator.AddRepos(ctx, plan.ReposToAdd)
		}},
		{name: "remove repos", key: DetailReposRemoved, run: func(ctx context.Context) ([]string, error) {
			return e.mutator.RemoveRepos(ctx, plan.ReposToRemove)
		}},
		{name: "add terms", key: DetailTermsAdded, run: func(ctx context.Context) ([]string, error) {
			return e.mutator.AddSearchTerms(ctx, plan.TermsToAdd)
		}},
		{name: "remove terms", key: DetailTermsRemoved, run: func(ctx context.Context) ([]string, error) {
			return e.mutator.RemoveSearchTerms(ctx, plan.TermsToRemove)
		}},
		{name: "config delta", key: DetailConfigChanged, run: func(ctx context.Context) ([]string, error) {
			return e.mutator.ApplyConfigDelta(ctx, plan.ConfigUpdates)
		}},
	}

	for _, s := range steps {
		if !hasWork(plan, s.key) {
			continue
		}
		changed, err := s.run(ctx)
		if err != nil {
			return s.name, err
		}
		if changed == nil {
			changed = []string{}
		}
		details[s.key] = changed
	}
	return "", nil
}

func hasWork(plan *model.UpdatePlan, key string) bool {
	switch key {
	case DetailReposAdded:
		return len(plan.ReposToAdd) > 0
	case DetailReposRemoved:
		return len(plan.ReposToRemove) > 0
	case DetailTermsAdded:
		return len(plan.TermsToAdd) > 0
	case DetailTermsRemoved:
		return len(plan.TermsToRemove) > 0
	case DetailConfigChanged:
		return len(plan.ConfigUpdates) > 0
	default:
		return false
	}
}

func cachedResult(plan *model.UpdatePlan) model.ExecutionResult {
	result := model.ExecutionResult{
		PlanID:  plan.PlanID,
		Success: true,
		Message: alreadyCompleted,
		Details: plan.Details,
	}
	if plan.ExecutedAt != nil {
		result.ExecutedAt = *plan.ExecutedAt
	}
	return result
}

func summarize(details map[string]any) string {
	count := func(key string) int {
		items, _ := details[key].([]string)
		return len(items)
	}
	return fmt.Sprintf("added %d repo(s), removed %d repo(s), added %d term(s), removed %d term(s), changed %d config key(s)",
		count(DetailReposAdded), count(DetailReposRemoved),
		count(DetailTermsAdded), count(DetailTermsRemoved),
		count(DetailConfigChanged))
}
