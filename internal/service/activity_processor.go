package service

import (
	"context"
	"log/slog"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/webhook"
)

// ActivityProcessor records repository activity that needs no action.
type ActivityProcessor struct{}

func NewActivityProcessor() *ActivityProcessor {
	return &ActivityProcessor{}
}

func (p *ActivityProcessor) Process(ctx context.Context, ev *model.StoredEvent) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "skillflow.service.activity"})

	switch ev.EventType {
	case "push":
		push, err := webhook.Decode[webhook.PushEvent](ev.Payload)
		if err != nil {
			return domain.Ingestion("decoding push event", err)
		}
		slog.InfoContext(ctx, "push received",
			"repo", ev.RepoName,
			"ref", push.Ref,
			"commits", len(push.Commits),
			"after", push.After)
	case "release":
		release, err := webhook.Decode[webhook.ReleaseEvent](ev.Payload)
		if err != nil {
			return domain.Ingestion("decoding release event", err)
		}
		slog.InfoContext(ctx, "release received",
			"repo", ev.RepoName,
			"action", release.Action,
			"tag", release.Release.TagName,
			"name", release.Release.Name)
	case "repository", "ping":
		slog.InfoContext(ctx, "repository activity received", "repo", ev.RepoName, "event_type", ev.EventType, "action", ev.Action)
	default:
		slog.DebugContext(ctx, "unhandled event accepted", "event_type", ev.EventType)
	}
	return nil
}

func (p *ActivityProcessor) Abandon(ctx context.Context, ev *model.StoredEvent, cause error) {
	slog.WarnContext(ctx, "activity event abandoned", "event_type", ev.EventType, "error", cause)
}
