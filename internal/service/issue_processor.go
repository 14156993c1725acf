package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/analyzer"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/notify"
	"basegraph.app/skillflow/internal/planner"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/webhook"
)

// issue actions that trigger analysis; everything else is recorded only
var issueActions = map[string]bool{
	"opened":   true,
	"edited":   true,
	"reopened": true,
}

const noRequirementsReason = "No actionable requirements found"

type Analyzer interface {
	Analyze(ctx context.Context, in analyzer.Input) (analyzer.Analysis, error)
}

type PlanExecutor interface {
	Execute(ctx context.Context, plan *model.UpdatePlan) (model.ExecutionResult, error)
}

// IssueProcessor drives an issue from analysis through plan execution.
// Every verdict is written to the issue record before the notification goes
// out, so a redelivered event resumes where the last attempt stopped.
type IssueProcessor struct {
	tx       TxRunner
	issues   store.IssueStore
	plans    store.PlanStore
	results  store.ExecutionResultStore
	analyzer Analyzer
	executor PlanExecutor
	sink     notify.Sink
	stats    *ProcessingStats
}

func NewIssueProcessor(
	tx TxRunner,
	issues store.IssueStore,
	plans store.PlanStore,
	results store.ExecutionResultStore,
	analyzer Analyzer,
	executor PlanExecutor,
	sink notify.Sink,
	stats *ProcessingStats,
) *IssueProcessor {
	return &IssueProcessor{
		tx:       tx,
		issues:   issues,
		plans:    plans,
		results:  results,
		analyzer: analyzer,
		executor: executor,
		sink:     sink,
		stats:    stats,
	}
}

// analyzed carries what the completion comment reports about the analysis.
type analyzed struct {
	issueType    model.IssueType
	requirements int
}

func (p *IssueProcessor) Process(ctx context.Context, ev *model.StoredEvent) error {
	payload, err := webhook.Decode[webhook.IssueEvent](ev.Payload)
	if err != nil {
		return domain.Ingestion("decoding issue event", err)
	}
	if payload.Issue.Number <= 0 {
		return domain.Ingestion("decoding issue event", errors.New("issue number missing"))
	}

	number := payload.Issue.Number
	ctx = logger.WithLogFields(ctx, logger.LogFields{IssueNumber: &number, Component: "skillflow.service.issue"})

	if !issueActions[payload.Action] {
		slog.InfoContext(ctx, "issue action ignored", "action", payload.Action)
		return nil
	}

	issue, err := p.issues.Upsert(ctx, issueRecord(payload.Issue))
	if err != nil {
		return domain.FatalStore("upserting issue", err)
	}

	switch issue.ProcessingStatus {
	case model.IssueStatusPending, model.IssueStatusAnalyzing:
		plan, info, err := p.analyzeAndPlan(ctx, *issue)
		if err != nil {
			return err
		}
		if plan == nil {
			p.stats.issue()
			return nil
		}
		return p.execute(ctx, issue, model.IssueStatusPlanned, plan, info)

	case model.IssueStatusPlanned, model.IssueStatusFailed:
		plan, err := p.planFor(ctx, issue)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "resuming plan execution", "plan_id", plan.PlanID, "status", issue.ProcessingStatus)
		return p.execute(ctx, issue, issue.ProcessingStatus, plan, analyzed{})

	default:
		slog.InfoContext(ctx, "issue already resolved, nothing to do", "status", issue.ProcessingStatus)
		return nil
	}
}

// AnalyzeAndPlan runs the analysis of a pending issue and returns the
// accepted plan. A nil plan with a nil error means the issue was resolved
// without one: rejected, filtered or failing plan validation.
func (p *IssueProcessor) AnalyzeAndPlan(ctx context.Context, issue model.IssueRecord) (*model.UpdatePlan, error) {
	plan, _, err := p.analyzeAndPlan(ctx, issue)
	return plan, err
}

func (p *IssueProcessor) analyzeAndPlan(ctx context.Context, issue model.IssueRecord) (*model.UpdatePlan, analyzed, error) {
	var info analyzed

	if issue.ProcessingStatus == model.IssueStatusPending {
		if err := p.transition(ctx, issue.Number, store.IssueTransition{
			From: model.IssueStatusPending,
			To:   model.IssueStatusAnalyzing,
		}); err != nil {
			return nil, info, err
		}
	}

	analysis, err := p.analyzer.Analyze(ctx, analyzer.Input{
		Title:  issue.Title,
		Body:   issue.Body,
		Author: issue.Author,
		Labels: issue.Labels,
	})
	if err != nil {
		return nil, info, p.analysisFailed(ctx, issue.Number, err)
	}
	info = analyzed{issueType: analysis.IssueType, requirements: len(analysis.Requirements)}

	switch analysis.Rejection {
	case analyzer.RejectSecurity:
		return nil, info, p.rejectMalicious(ctx, issue, analysis)
	case analyzer.RejectAuthor:
		return nil, info, p.rejectAuthor(ctx, issue, analysis)
	case analyzer.RejectNone:
	}

	if len(analysis.Requirements) == 0 {
		reason := noRequirementsReason
		if err := p.transition(ctx, issue.Number, store.IssueTransition{
			From:         model.IssueStatusAnalyzing,
			To:           model.IssueStatusFiltered,
			FilterReason: &reason,
		}); err != nil {
			return nil, info, err
		}
		p.comment(ctx, issue.Number, func() (string, error) {
			return notify.NoRequirementsFound(notify.NoRequirements{Author: issue.Author})
		})
		return nil, info, nil
	}

	plan, err := planner.Generate(issue, analysis.Requirements)
	if err != nil {
		return nil, info, p.analysisFailed(ctx, issue.Number, err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{PlanID: &plan.PlanID})

	if ok, errs := planner.Validate(plan); !ok {
		reason := "Plan validation failed: " + strings.Join(errs, "; ")
		if err := p.transition(ctx, issue.Number, store.IssueTransition{
			From:         model.IssueStatusAnalyzing,
			To:           model.IssueStatusRejected,
			FilterReason: &reason,
		}); err != nil {
			return nil, info, err
		}
		slog.WarnContext(ctx, "generated plan is invalid", "errors", errs)
		p.comment(ctx, issue.Number, func() (string, error) {
			return notify.ValidationFailed(notify.ValidationFailure{Author: issue.Author, Errors: errs})
		})
		return nil, info, nil
	}

	err = p.tx.WithTx(ctx, func(sp StoreProvider) error {
		if err := sp.Plans().Create(ctx, plan); err != nil {
			return err
		}
		return sp.Issues().Transition(ctx, issue.Number, store.IssueTransition{
			From:   model.IssueStatusAnalyzing,
			To:     model.IssueStatusPlanned,
			PlanID: &plan.PlanID,
		})
	})
	if err != nil {
		return nil, info, storeError("saving plan", err)
	}

	slog.InfoContext(ctx, "plan accepted",
		"plan_type", plan.PlanType,
		"priority", plan.Priority,
		"requirements", len(analysis.Requirements))

	if err := p.sink.AddLabels(ctx, issue.Number, notify.LabelPlanned); err != nil {
		slog.WarnContext(ctx, "adding planned label failed", "error", err)
	}

	return plan, info, nil
}

func (p *IssueProcessor) rejectMalicious(ctx context.Context, issue model.IssueRecord, analysis analyzer.Analysis) error {
	reason := analysis.FilterReason
	if err := p.transition(ctx, issue.Number, store.IssueTransition{
		From:         model.IssueStatusAnalyzing,
		To:           model.IssueStatusRejected,
		FilterReason: &reason,
		Severity:     analysis.Severity,
	}); err != nil {
		return err
	}

	if err := p.sink.AddLabels(ctx, issue.Number, notify.LabelMalicious); err != nil {
		slog.WarnContext(ctx, "adding malicious label failed", "error", err)
	}

	data := notify.SecurityRejection{Author: issue.Author, Reason: reason}
	if analysis.Security != nil {
		data.Severity = analysis.Security.Severity
		data.Matched = len(analysis.Security.Matched)
	}
	p.comment(ctx, issue.Number, func() (string, error) { return notify.SecurityRejected(data) })
	return nil
}

func (p *IssueProcessor) rejectAuthor(ctx context.Context, issue model.IssueRecord, analysis analyzer.Analysis) error {
	reason := analysis.FilterReason
	if err := p.transition(ctx, issue.Number, store.IssueTransition{
		From:         model.IssueStatusAnalyzing,
		To:           model.IssueStatusRejected,
		FilterReason: &reason,
	}); err != nil {
		return err
	}

	var reasons []string
	if analysis.Author != nil {
		reasons = analysis.Author.Reasons
	}
	p.comment(ctx, issue.Number, func() (string, error) {
		return notify.AuthorRejected(notify.AuthorRejection{Author: issue.Author, Reasons: reasons})
	})
	return nil
}

// analysisFailed puts the issue back to pending when the failure will be
// retried, and rejects it otherwise. The error is returned for the worker.
func (p *IssueProcessor) analysisFailed(ctx context.Context, number int, cause error) error {
	if domain.KindOf(cause).Retryable() {
		if err := p.transition(ctx, number, store.IssueTransition{
			From: model.IssueStatusAnalyzing,
			To:   model.IssueStatusPending,
		}); err != nil {
			slog.ErrorContext(ctx, "returning issue to pending failed", "error", err)
		}
		return cause
	}

	reason := cause.Error()
	if err := p.transition(ctx, number, store.IssueTransition{
		From:         model.IssueStatusAnalyzing,
		To:           model.IssueStatusRejected,
		FilterReason: &reason,
	}); err != nil {
		slog.ErrorContext(ctx, "rejecting issue failed", "error", err)
	}
	return cause
}

func (p *IssueProcessor) execute(ctx context.Context, issue *model.IssueRecord, from model.IssueStatus, plan *model.UpdatePlan, info analyzed) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{PlanID: &plan.PlanID})

	result, err := p.executor.Execute(ctx, plan)
	if err != nil {
		if terr := p.transition(ctx, issue.Number, store.IssueTransition{
			From: from,
			To:   model.IssueStatusFailed,
		}); terr != nil {
			slog.ErrorContext(ctx, "marking issue failed", "error", terr)
		}
		return err
	}

	if err := p.transition(ctx, issue.Number, store.IssueTransition{
		From: from,
		To:   model.IssueStatusCompleted,
	}); err != nil {
		return err
	}

	p.comment(ctx, issue.Number, func() (string, error) {
		return notify.PlanCompleted(notify.PlanOutcome{
			Plan:             plan,
			Result:           &result,
			Author:           issue.Author,
			IssueType:        info.issueType,
			RequirementCount: info.requirements,
		})
	})
	p.stats.issue()
	return nil
}

// Abandon settles the issue once the event will not be retried and posts
// the one notification for that outcome.
func (p *IssueProcessor) Abandon(ctx context.Context, ev *model.StoredEvent, cause error) {
	p.stats.failure()

	payload, err := webhook.Decode[webhook.IssueEvent](ev.Payload)
	if err != nil || payload.Issue.Number <= 0 {
		slog.WarnContext(ctx, "abandoned issue event has no usable issue", "error", cause)
		return
	}
	number := payload.Issue.Number
	ctx = logger.WithLogFields(ctx, logger.LogFields{IssueNumber: &number, Component: "skillflow.service.issue"})

	issue, err := p.issues.Get(ctx, number)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "loading abandoned issue failed", "error", err)
		}
		return
	}

	reason := cause.Error()
	switch issue.ProcessingStatus {
	case model.IssueStatusPending:
		if err := p.transition(ctx, number, store.IssueTransition{From: model.IssueStatusPending, To: model.IssueStatusAnalyzing}); err != nil {
			slog.ErrorContext(ctx, "rejecting abandoned issue failed", "error", err)
			return
		}
		fallthrough
	case model.IssueStatusAnalyzing:
		if err := p.transition(ctx, number, store.IssueTransition{
			From:         model.IssueStatusAnalyzing,
			To:           model.IssueStatusRejected,
			FilterReason: &reason,
		}); err != nil {
			slog.ErrorContext(ctx, "rejecting abandoned issue failed", "error", err)
			return
		}
		fallthrough
	case model.IssueStatusRejected:
		p.comment(ctx, number, func() (string, error) {
			return notify.ProcessingFailed(notify.ProcessingError{Message: reason})
		})

	case model.IssueStatusPlanned:
		if err := p.transition(ctx, number, store.IssueTransition{From: model.IssueStatusPlanned, To: model.IssueStatusFailed}); err != nil {
			slog.ErrorContext(ctx, "failing abandoned issue failed", "error", err)
		}
		fallthrough
	case model.IssueStatusFailed:
		p.executionFailed(ctx, issue, reason)

	case model.IssueStatusFiltered, model.IssueStatusCompleted:
		slog.InfoContext(ctx, "abandoned event for a resolved issue", "status", issue.ProcessingStatus)
	}
}

func (p *IssueProcessor) executionFailed(ctx context.Context, issue *model.IssueRecord, reason string) {
	outcome := notify.PlanOutcome{Author: issue.Author}

	plan, err := p.planFor(ctx, issue)
	if err != nil {
		slog.ErrorContext(ctx, "loading plan for failure notice", "error", err)
		p.comment(ctx, issue.Number, func() (string, error) {
			return notify.ProcessingFailed(notify.ProcessingError{Message: reason})
		})
		return
	}
	outcome.Plan = plan

	results, err := p.results.ListByPlan(ctx, plan.PlanID)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "loading execution results failed", "error", err)
	case len(results) > 0:
		outcome.Result = &results[len(results)-1]
	}
	if outcome.Result == nil {
		outcome.Result = &model.ExecutionResult{PlanID: plan.PlanID, Error: &reason}
	}

	p.comment(ctx, issue.Number, func() (string, error) { return notify.ExecutionFailed(outcome) })
}

func (p *IssueProcessor) planFor(ctx context.Context, issue *model.IssueRecord) (*model.UpdatePlan, error) {
	var (
		plan *model.UpdatePlan
		err  error
	)
	if issue.PlanID != nil {
		plan, err = p.plans.Get(ctx, *issue.PlanID)
	} else {
		plan, err = p.plans.LatestForIssue(ctx, issue.Number)
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("loading plan for issue #%d", issue.Number), err)
	}
	return plan, nil
}

func (p *IssueProcessor) transition(ctx context.Context, number int, t store.IssueTransition) error {
	if err := p.issues.Transition(ctx, number, t); err != nil {
		return storeError(fmt.Sprintf("issue %s -> %s", t.From, t.To), err)
	}
	return nil
}

// comment renders and posts a notification. Delivery failures are logged:
// the outcome is already recorded and is not redone for a comment.
func (p *IssueProcessor) comment(ctx context.Context, number int, render func() (string, error)) {
	postComment(ctx, p.sink, number, render)
}

func postComment(ctx context.Context, sink notify.Sink, number int, render func() (string, error)) {
	body, err := render()
	if err != nil {
		slog.ErrorContext(ctx, "rendering comment failed", "error", err)
		return
	}
	if err := sink.PostComment(ctx, number, body); err != nil {
		slog.WarnContext(ctx, "posting comment failed", "number", number, "error", err)
	}
}

// storeError classifies store failures. A lost compare-and-set means another
// attempt moved the record first; retrying re-reads it.
func storeError(op string, err error) error {
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
		return domain.Transient(op, err)
	}
	return domain.FatalStore(op, err)
}

func issueRecord(in webhook.Issue) *model.IssueRecord {
	return &model.IssueRecord{
		Number:    in.Number,
		Title:     in.Title,
		Body:      in.Body,
		Author:    in.User.Login,
		Labels:    webhook.Names(in.Labels),
		State:     in.State,
		Reactions: in.Reactions.PositiveReactions(),
	}
}
