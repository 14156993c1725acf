package queue

import (
	"context"
	"errors"
	"time"

	"basegraph.app/skillflow/internal/model"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("queue closed")

// Message references a stored event. The payload itself never travels
// through the queue; workers load it from the event store.
type Message struct {
	// ID is the backend's handle for Ack. Empty for the memory backend.
	ID       string
	TraceID  string
	Category model.Category
	EventID  int64
	Attempt  int
}

// Backend is a bounded FIFO of event references.
type Backend interface {
	// Push appends msg unless the queue already holds its maximum number of
	// entries, in which case it returns false. The size check and the append
	// are atomic.
	Push(ctx context.Context, msg Message) (bool, error)
	// Pop waits up to timeout for a message. It returns nil, nil when nothing
	// arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (*Message, error)
	// Ack releases a popped message.
	Ack(ctx context.Context, msg Message) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Reclaimer is implemented by backends that can hold entries delivered to a
// consumer that went away.
type Reclaimer interface {
	// ReclaimStale drops entries that have been pending longer than minIdle
	// and returns how many were dropped.
	ReclaimStale(ctx context.Context, minIdle time.Duration) (int, error)
}
