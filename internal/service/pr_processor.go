package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/github"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/notify"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/submission"
	"basegraph.app/skillflow/internal/webhook"
)

var prActions = map[string]bool{
	"opened":      true,
	"edited":      true,
	"reopened":    true,
	"synchronize": true,
}

// actions that re-open validation of an already judged pull request
var prRevalidateActions = map[string]bool{
	"synchronize": true,
	"reopened":    true,
}

type PRFileSource interface {
	PullRequestFiles(ctx context.Context, number int, ref string) ([]model.PRFile, error)
}

type Merger interface {
	Merge(ctx context.Context, number int, title, method string) error
	IsMerged(ctx context.Context, number int) (bool, error)
}

type SubmissionValidator interface {
	Validate(ctx context.Context, pr model.PRRecord, files []model.PRFile) (submission.ValidationResult, error)
}

type PRProcessorConfig struct {
	AutoMergeEnabled bool
	AutoMergeLabel   string
	MergeMethod      string
}

// PRProcessor validates skill submissions and merges the ones that qualify.
type PRProcessor struct {
	tx        TxRunner
	prs       store.PullRequestStore
	files     PRFileSource
	merger    Merger
	validator SubmissionValidator
	sink      notify.Sink
	stats     *ProcessingStats
	cfg       PRProcessorConfig
}

// NewPRProcessor builds the processor. merger may be nil, which disables
// merging regardless of configuration.
func NewPRProcessor(
	tx TxRunner,
	prs store.PullRequestStore,
	files PRFileSource,
	merger Merger,
	validator SubmissionValidator,
	sink notify.Sink,
	stats *ProcessingStats,
	cfg PRProcessorConfig,
) *PRProcessor {
	if cfg.MergeMethod == "" {
		cfg.MergeMethod = "squash"
	}
	if cfg.AutoMergeLabel == "" {
		cfg.AutoMergeLabel = "auto-merge"
	}
	return &PRProcessor{
		tx:        tx,
		prs:       prs,
		files:     files,
		merger:    merger,
		validator: validator,
		sink:      sink,
		stats:     stats,
		cfg:       cfg,
	}
}

func (p *PRProcessor) Process(ctx context.Context, ev *model.StoredEvent) error {
	payload, err := webhook.Decode[webhook.PullRequestEvent](ev.Payload)
	if err != nil {
		return domain.Ingestion("decoding pull request event", err)
	}
	if payload.PullRequest.Number <= 0 {
		return domain.Ingestion("decoding pull request event", errors.New("pull request number missing"))
	}

	number := payload.PullRequest.Number
	ctx = logger.WithLogFields(ctx, logger.LogFields{PRNumber: &number, Component: "skillflow.service.pr"})

	if ev.EventType != "pull_request" || !prActions[payload.Action] {
		slog.InfoContext(ctx, "pull request activity recorded", "event_type", ev.EventType, "action", payload.Action)
		return nil
	}

	pr, err := p.prs.Upsert(ctx, prRecord(payload.PullRequest))
	if err != nil {
		return domain.FatalStore("upserting pull request", err)
	}

	switch pr.ProcessingStatus {
	case model.PRStatusPending, model.PRStatusValidated:
	case model.PRStatusApproved, model.PRStatusRejected:
		if !prRevalidateActions[payload.Action] {
			slog.InfoContext(ctx, "pull request already judged", "status", pr.ProcessingStatus, "action", payload.Action)
			return nil
		}
		if err := p.transition(ctx, number, store.PRTransition{From: pr.ProcessingStatus, To: model.PRStatusPending}); err != nil {
			return err
		}
		pr.ProcessingStatus = model.PRStatusPending
	case model.PRStatusMerged:
		slog.InfoContext(ctx, "pull request already merged")
		return nil
	}

	return p.validateAndMerge(ctx, pr)
}

func (p *PRProcessor) validateAndMerge(ctx context.Context, pr *model.PRRecord) error {
	files, err := p.files.PullRequestFiles(ctx, pr.Number, pr.HeadSHA)
	if err != nil {
		var classified *domain.Error
		if errors.As(err, &classified) {
			return err
		}
		return domain.Transient("fetching pull request files", err)
	}

	result, err := p.validator.Validate(ctx, *pr, files)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "pull request validated",
		"valid", result.IsValid,
		"submissions", len(result.Submissions),
		"duplicates", result.DuplicateCount,
		"errors", len(result.Errors))

	if !result.IsValid {
		if err := p.transition(ctx, pr.Number, store.PRTransition{
			From:             pr.ProcessingStatus,
			To:               model.PRStatusRejected,
			ValidationErrors: result.Errors,
		}); err != nil {
			return err
		}
		p.report(ctx, pr.Number, notify.PRReport{Result: result, AutoMergeLabel: p.cfg.AutoMergeLabel})
		p.stats.pr()
		return nil
	}

	hashes := result.Hashes()
	if pr.ProcessingStatus == model.PRStatusPending {
		if err := p.transition(ctx, pr.Number, store.PRTransition{
			From:          model.PRStatusPending,
			To:            model.PRStatusValidated,
			ContentHashes: hashes,
		}); err != nil {
			return err
		}
	}

	report := notify.PRReport{Result: result, AutoMergeLabel: p.cfg.AutoMergeLabel}

	if result.CanAutoMerge && p.cfg.AutoMergeEnabled && p.merger != nil {
		title := fmt.Sprintf("Auto-merge PR #%d: %s", pr.Number, pr.Title)
		err := p.merger.Merge(ctx, pr.Number, title, p.cfg.MergeMethod)
		switch {
		case err == nil:
			report.Merged = true
		case errors.Is(err, github.ErrNotMergeable):
			// a retry after a merge whose bookkeeping failed lands here
			merged, checkErr := p.merger.IsMerged(ctx, pr.Number)
			if checkErr != nil {
				return domain.Transient("checking merge state", checkErr)
			}
			if merged {
				report.Merged = true
				slog.InfoContext(ctx, "pull request already merged")
				break
			}
			report.MergeError = err.Error()
			slog.WarnContext(ctx, "auto-merge refused", "error", err)
		default:
			return domain.Transient("merging pull request", err)
		}
	}

	if report.Merged {
		err = p.tx.WithTx(ctx, func(sp StoreProvider) error {
			for _, sub := range result.Submissions {
				if err := sp.Content().Add(ctx, model.TrackedContent{
					Hash:     sub.Hash,
					Path:     sub.Dir,
					PRNumber: pr.Number,
				}); err != nil {
					return err
				}
			}
			return sp.PullRequests().Transition(ctx, pr.Number, store.PRTransition{
				From:          model.PRStatusValidated,
				To:            model.PRStatusMerged,
				ContentHashes: hashes,
			})
		})
		if err != nil {
			return storeError("recording merge", err)
		}
	} else if err := p.transition(ctx, pr.Number, store.PRTransition{
		From:          model.PRStatusValidated,
		To:            model.PRStatusApproved,
		ContentHashes: hashes,
	}); err != nil {
		return err
	}

	p.report(ctx, pr.Number, report)
	p.stats.pr()
	return nil
}

// Abandon rejects the pull request and reports the failure on it.
func (p *PRProcessor) Abandon(ctx context.Context, ev *model.StoredEvent, cause error) {
	p.stats.failure()

	payload, err := webhook.Decode[webhook.PullRequestEvent](ev.Payload)
	if err != nil || payload.PullRequest.Number <= 0 {
		slog.WarnContext(ctx, "abandoned pull request event has no usable number", "error", cause)
		return
	}
	number := payload.PullRequest.Number
	ctx = logger.WithLogFields(ctx, logger.LogFields{PRNumber: &number, Component: "skillflow.service.pr"})

	pr, err := p.prs.Get(ctx, number)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "loading abandoned pull request failed", "error", err)
		}
		return
	}

	switch pr.ProcessingStatus {
	case model.PRStatusPending, model.PRStatusValidated:
		if err := p.transition(ctx, number, store.PRTransition{
			From:             pr.ProcessingStatus,
			To:               model.PRStatusRejected,
			ValidationErrors: []string{cause.Error()},
		}); err != nil {
			slog.ErrorContext(ctx, "rejecting abandoned pull request failed", "error", err)
		}
	case model.PRStatusApproved, model.PRStatusRejected, model.PRStatusMerged:
		return
	}

	postComment(ctx, p.sink, number, func() (string, error) {
		return notify.ProcessingFailed(notify.ProcessingError{Message: cause.Error()})
	})
}

func (p *PRProcessor) report(ctx context.Context, number int, report notify.PRReport) {
	postComment(ctx, p.sink, number, func() (string, error) { return notify.PRValidation(report) })
}

func (p *PRProcessor) transition(ctx context.Context, number int, t store.PRTransition) error {
	if err := p.prs.Transition(ctx, number, t); err != nil {
		return storeError(fmt.Sprintf("pull request %s -> %s", t.From, t.To), err)
	}
	return nil
}

func prRecord(in webhook.PullRequest) *model.PRRecord {
	return &model.PRRecord{
		Number:  in.Number,
		Title:   in.Title,
		Author:  in.User.Login,
		State:   in.State,
		HeadRef: in.Head.Ref,
		HeadSHA: in.Head.SHA,
		Labels:  webhook.Names(in.Labels),
	}
}
