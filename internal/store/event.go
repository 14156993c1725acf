package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"basegraph.app/skillflow/common/id"
	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type eventStore struct {
	queries *sqlc.Queries
}

func newEventStore(queries *sqlc.Queries) EventStore {
	return &eventStore{queries: queries}
}

func (s *eventStore) Append(ctx context.Context, ev model.InboundEvent, category model.Category) (*model.StoredEvent, bool, error) {
	payload := ev.RawBody
	if len(payload) == 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, false, fmt.Errorf("encoding payload: %w", err)
		}
		payload = b
	}

	var delivery sql.NullString
	if ev.DeliveryID != "" {
		delivery = sql.NullString{String: ev.DeliveryID, Valid: true}
	}

	receivedAt := ev.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = now()
	}

	stored := &model.StoredEvent{
		ID:         id.New(),
		DeliveryID: ev.DeliveryID,
		EventType:  ev.EventType,
		Action:     ev.Action,
		Category:   category,
		RepoName:   ev.RepoName,
		Payload:    json.RawMessage(payload),
		ReceivedAt: receivedAt,
		UpdatedAt:  now(),
		Status:     model.EventStatusPending,
	}

	affected, err := s.queries.InsertEvent(ctx, sqlc.InsertEventParams{
		ID:         stored.ID,
		DeliveryID: delivery,
		EventType:  stored.EventType,
		Action:     stored.Action,
		Category:   string(stored.Category),
		RepoName:   stored.RepoName,
		Payload:    string(payload),
		ReceivedAt: stored.ReceivedAt,
		UpdatedAt:  stored.UpdatedAt,
	})
	if err != nil {
		return nil, false, fmt.Errorf("inserting event: %w", err)
	}
	if affected == 1 {
		return stored, true, nil
	}

	row, err := s.queries.GetEventByDelivery(ctx, delivery)
	if err != nil {
		if isNoRows(err) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("loading event %s: %w", ev.DeliveryID, err)
	}
	return toEventModel(row), false, nil
}

func (s *eventStore) Get(ctx context.Context, eventID int64) (*model.StoredEvent, error) {
	row, err := s.queries.GetEvent(ctx, eventID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading event %d: %w", eventID, err)
	}
	return toEventModel(row), nil
}

func (s *eventStore) MarkCompleted(ctx context.Context, eventID int64) error {
	ts := now()
	affected, err := s.queries.MarkEventCompleted(ctx, sqlc.MarkEventCompletedParams{
		ProcessedAt: sql.NullTime{Time: ts, Valid: true},
		UpdatedAt:   ts,
		ID:          eventID,
	})
	if err != nil {
		return fmt.Errorf("marking event %d completed: %w", eventID, err)
	}
	return expectOne(affected)
}

func (s *eventStore) MarkFailed(ctx context.Context, eventID int64, errMsg string, incrementRetry bool) error {
	var increment int32
	if incrementRetry {
		increment = 1
	}

	ts := now()
	affected, err := s.queries.MarkEventFailed(ctx, sqlc.MarkEventFailedParams{
		LastError:   sql.NullString{String: errMsg, Valid: true},
		Increment:   increment,
		ProcessedAt: sql.NullTime{Time: ts, Valid: true},
		UpdatedAt:   ts,
		ID:          eventID,
	})
	if err != nil {
		return fmt.Errorf("marking event %d failed: %w", eventID, err)
	}
	return expectOne(affected)
}

func (s *eventStore) MarkTerminal(ctx context.Context, eventID int64, errMsg string, maxRetries int) error {
	ts := now()
	affected, err := s.queries.MarkEventTerminal(ctx, sqlc.MarkEventTerminalParams{
		LastError:   sql.NullString{String: errMsg, Valid: true},
		MaxRetries:  int32(maxRetries),
		ProcessedAt: sql.NullTime{Time: ts, Valid: true},
		UpdatedAt:   ts,
		ID:          eventID,
	})
	if err != nil {
		return fmt.Errorf("marking event %d terminal: %w", eventID, err)
	}
	return expectOne(affected)
}

func (s *eventStore) PendingOrRetryable(ctx context.Context, maxRetries, limit int) ([]model.StoredEvent, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.queries.ListUnresolvedEvents(ctx, sqlc.ListUnresolvedEventsParams{
		MaxRetries: int32(maxRetries),
		RowLimit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("listing unresolved events: %w", err)
	}

	events := make([]model.StoredEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, *toEventModel(row))
	}
	return events, nil
}

func (s *eventStore) CountUnresolved(ctx context.Context, maxRetries int) (int, error) {
	n, err := s.queries.CountUnresolvedEvents(ctx, int32(maxRetries))
	if err != nil {
		return 0, fmt.Errorf("counting unresolved events: %w", err)
	}
	return int(n), nil
}

func (s *eventStore) Stats(ctx context.Context) (model.EventStats, error) {
	stats := model.EventStats{
		ByStatus:   make(map[model.EventStatus]int),
		ByCategory: make(map[model.Category]int),
	}

	counts, err := s.queries.CountEventsByStatusAndCategory(ctx)
	if err != nil {
		return stats, fmt.Errorf("event stats: %w", err)
	}
	for _, c := range counts {
		n := int(c.Count)
		stats.ByStatus[model.EventStatus(c.Status)] += n
		stats.ByCategory[model.Category(c.Category)] += n
		stats.Total += n
	}

	last, err := s.queries.LastProcessedAt(ctx)
	if err != nil && !isNoRows(err) {
		return stats, fmt.Errorf("event stats: %w", err)
	}
	stats.LastProcessedAt = timePtr(last)

	return stats, nil
}

// toEventModel converts sqlc.Event to model.StoredEvent
func toEventModel(row sqlc.Event) *model.StoredEvent {
	return &model.StoredEvent{
		ID:          row.ID,
		DeliveryID:  row.DeliveryID.String,
		EventType:   row.EventType,
		Action:      row.Action,
		Category:    model.Category(row.Category),
		RepoName:    row.RepoName,
		Payload:     json.RawMessage(row.Payload),
		ReceivedAt:  row.ReceivedAt.UTC(),
		Status:      model.EventStatus(row.Status),
		RetryCount:  int(row.RetryCount),
		LastError:   stringPtr(row.LastError),
		ProcessedAt: timePtr(row.ProcessedAt),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}
