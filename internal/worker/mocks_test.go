package worker_test

import (
	"context"
	"sync"

	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
)

type memEvents struct {
	mu     sync.Mutex
	events map[int64]*model.StoredEvent
	order  []int64
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[int64]*model.StoredEvent)}
}

func (m *memEvents) add(ev model.StoredEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Status == "" {
		ev.Status = model.EventStatusPending
	}
	m.events[ev.ID] = &ev
	m.order = append(m.order, ev.ID)
}

func (m *memEvents) snapshot(id int64) model.StoredEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

func (m *memEvents) Append(context.Context, model.InboundEvent, model.Category) (*model.StoredEvent, bool, error) {
	panic("not used")
}

func (m *memEvents) Get(_ context.Context, id int64) (*model.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *memEvents) MarkCompleted(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return store.ErrNotFound
	}
	ev.Status = model.EventStatusCompleted
	ev.LastError = nil
	return nil
}

func (m *memEvents) MarkFailed(_ context.Context, id int64, errMsg string, incrementRetry bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return store.ErrNotFound
	}
	ev.Status = model.EventStatusFailed
	ev.LastError = &errMsg
	if incrementRetry {
		ev.RetryCount++
	}
	return nil
}

func (m *memEvents) MarkTerminal(_ context.Context, id int64, errMsg string, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return store.ErrNotFound
	}
	ev.Status = model.EventStatusFailed
	ev.LastError = &errMsg
	ev.RetryCount = max(ev.RetryCount, maxRetries)
	return nil
}

func (m *memEvents) PendingOrRetryable(_ context.Context, maxRetries, limit int) ([]model.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StoredEvent
	for _, id := range m.order {
		if ev := m.events[id]; ev.Retryable(maxRetries) {
			out = append(out, *ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEvents) CountUnresolved(ctx context.Context, maxRetries int) (int, error) {
	evs, err := m.PendingOrRetryable(ctx, maxRetries, 1<<30)
	return len(evs), err
}

func (m *memEvents) Stats(context.Context) (model.EventStats, error) {
	return model.EventStats{}, nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	calls     []int64
	abandoned []error

	processFn func(ctx context.Context, ev *model.StoredEvent) error
}

func (p *fakeProcessor) Process(ctx context.Context, ev *model.StoredEvent) error {
	p.mu.Lock()
	p.calls = append(p.calls, ev.ID)
	fn := p.processFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, ev)
	}
	return nil
}

func (p *fakeProcessor) Abandon(_ context.Context, _ *model.StoredEvent, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = append(p.abandoned, cause)
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProcessor) abandonCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.abandoned)
}
