package notify

import (
	"context"
	"log/slog"

	"basegraph.app/skillflow/common/logger"
)

// Sink delivers outcome notifications to issues and pull requests.
type Sink interface {
	PostComment(ctx context.Context, number int, markdown string) error
	AddLabels(ctx context.Context, number int, labels ...string) error
}

const (
	LabelMalicious = "malicious"
	LabelPlanned   = "planned"
)

// LogSink writes notifications to the log instead of GitHub. It is used when
// no GitHub token is configured.
type LogSink struct{}

func (LogSink) PostComment(ctx context.Context, number int, markdown string) error {
	slog.InfoContext(ctx, "comment (not posted)",
		"number", number,
		"comment", logger.Truncate(markdown, 2000))
	return nil
}

func (LogSink) AddLabels(ctx context.Context, number int, labels ...string) error {
	slog.InfoContext(ctx, "labels (not applied)", "number", number, "labels", labels)
	return nil
}
