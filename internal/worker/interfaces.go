package worker

import (
	"context"

	"basegraph.app/skillflow/internal/model"
)

// Processor handles one stored event.
type Processor interface {
	// Process runs the event. A returned error is classified with
	// domain.KindOf to decide between retry and giving up.
	Process(ctx context.Context, ev *model.StoredEvent) error
	// Abandon is called once when the event will not be attempted again.
	// It owns the single terminal notification for the event.
	Abandon(ctx context.Context, ev *model.StoredEvent, cause error)
}

// Enqueuer accepts event references for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventID int64, category model.Category) bool
}
