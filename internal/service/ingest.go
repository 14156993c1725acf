package service

import (
	"context"
	"log/slog"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/webhook"
	"basegraph.app/skillflow/internal/worker"
)

type IngestResult struct {
	Event     *model.StoredEvent
	Duplicate bool
	// Enqueued is false when the queue refused the event. It stays pending in
	// the store and the reconciler picks it up.
	Enqueued bool
}

type IngestService interface {
	Ingest(ctx context.Context, ev model.InboundEvent) (*IngestResult, error)
}

type ingestService struct {
	events   store.EventStore
	enqueuer worker.Enqueuer
}

func NewIngestService(events store.EventStore, enqueuer worker.Enqueuer) IngestService {
	return &ingestService{events: events, enqueuer: enqueuer}
}

// Ingest persists the event before anything else happens to it. Only a
// store failure is returned as an error.
func (s *ingestService) Ingest(ctx context.Context, ev model.InboundEvent) (*IngestResult, error) {
	category := webhook.Categorize(ev.EventType, ev.Payload)

	stored, created, err := s.events.Append(ctx, ev, category)
	if err != nil {
		return nil, domain.FatalStore("appending event", err)
	}

	if !created {
		slog.InfoContext(ctx, "duplicate delivery deduped",
			"event_id", stored.ID,
			"status", stored.Status)
		return &IngestResult{Event: stored, Duplicate: true}, nil
	}

	enqueued := s.enqueuer.Enqueue(ctx, stored.ID, category)

	slog.InfoContext(ctx, "event ingested",
		"event_id", stored.ID,
		"category", category,
		"action", ev.Action,
		"enqueued", enqueued)

	return &IngestResult{Event: stored, Enqueued: enqueued}, nil
}
