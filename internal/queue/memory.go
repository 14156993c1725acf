package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process bounded FIFO.
type MemoryBackend struct {
	mu      sync.Mutex
	items   []Message
	maxSize int
	closed  bool

	// ready is signalled without blocking whenever items are added
	ready chan struct{}
	done  chan struct{}
}

func NewMemoryBackend(maxSize int) *MemoryBackend {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryBackend{
		maxSize: maxSize,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (b *MemoryBackend) Push(_ context.Context, msg Message) (bool, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false, ErrClosed
	}
	if len(b.items) >= b.maxSize {
		b.mu.Unlock()
		return false, nil
	}
	b.items = append(b.items, msg)
	b.mu.Unlock()

	b.signal()
	return true, nil
}

func (b *MemoryBackend) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			msg := b.items[0]
			b.items[0] = Message{}
			b.items = b.items[1:]
			more := len(b.items) > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return &msg, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-b.done:
			return nil, ErrClosed
		case <-b.ready:
		}
	}
}

func (b *MemoryBackend) Ack(context.Context, Message) error {
	return nil
}

func (b *MemoryBackend) Len(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items), nil
}

// Close wakes every waiting Pop. Messages still queued are dropped; their
// events remain unresolved in the store.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.items = nil
	close(b.done)
	return nil
}

func (b *MemoryBackend) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
