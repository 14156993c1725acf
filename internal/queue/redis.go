package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/model"
)

type RedisConfig struct {
	Stream   string // Redis stream name
	Group    string // Redis consumer group name
	Consumer string // Redis consumer name
	MaxSize  int    // Maximum stream length
}

// pushScript makes the length check and the append one atomic step.
// Returns nil (redis.Nil on the client) when the stream is full.
var pushScript = redis.NewScript(`
if redis.call('XLEN', KEYS[1]) >= tonumber(ARGV[1]) then
	return false
end
return redis.call('XADD', KEYS[1], '*',
	'event_id', ARGV[2], 'category', ARGV[3], 'attempt', ARGV[4], 'trace_id', ARGV[5])
`)

// RedisBackend keeps the queue in a Redis stream read through a consumer
// group. Acked entries are deleted, so the stream length is the queue depth.
type RedisBackend struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisBackend(ctx context.Context, client *redis.Client, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.MaxSize < 1 {
		return nil, errors.New("redis queue: max size must be positive")
	}
	b := &RedisBackend{client: client, cfg: cfg}
	if err := b.ensureGroup(ctx); err != nil {
		return nil, err
	}
	if err := b.dropOwnPending(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RedisBackend) ensureGroup(ctx context.Context) error {
	// "0" so a recreated group still sees entries already in the stream
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// dropOwnPending removes entries a previous run of this consumer read but
// never acked. Their events are still unresolved in the store and come back
// through reconciliation.
func (b *RedisBackend) dropOwnPending(ctx context.Context) error {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{b.cfg.Stream, "0"},
		Count:    int64(b.cfg.MaxSize),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("reading own pending entries: %w", err)
	}

	var ids []string
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ids = append(ids, msg.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := b.remove(ctx, ids...); err != nil {
		return err
	}
	slog.InfoContext(ctx, "dropped stale pending queue entries", "count", len(ids), "stream", b.cfg.Stream)
	return nil
}

func (b *RedisBackend) Push(ctx context.Context, msg Message) (bool, error) {
	attempt := msg.Attempt
	if attempt < 0 {
		attempt = 0
	}

	_, err := pushScript.Run(ctx, b.client, []string{b.cfg.Stream},
		b.cfg.MaxSize, msg.EventID, string(msg.Category), attempt, msg.TraceID,
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return false, ErrClosed
		}
		return false, fmt.Errorf("xadd (stream=%s): %w", b.cfg.Stream, err)
	}
	return true, nil
}

func (b *RedisBackend) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		// ">" delivers entries no consumer has seen yet
		Streams: []string{b.cfg.Stream, ">"},
		Count:   1,
		Block:   timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, err := ParseMessage(raw)
			if err != nil {
				ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "skillflow.queue.redis"})
				slog.ErrorContext(ctx, "dropping unparseable queue entry",
					"error", err,
					"raw_message_id", raw.ID,
					"stream", b.cfg.Stream)
				_ = b.remove(ctx, raw.ID)
				continue
			}
			return &msg, nil
		}
	}
	return nil, nil
}

func (b *RedisBackend) Ack(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return nil
	}
	return b.remove(ctx, msg.ID)
}

func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	n, err := b.client.XLen(ctx, b.cfg.Stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen (stream=%s): %w", b.cfg.Stream, err)
	}
	return int(n), nil
}

// ReclaimStale drops entries other consumers read and left unacked for longer
// than minIdle.
func (b *RedisBackend) ReclaimStale(ctx context.Context, minIdle time.Duration) (int, error) {
	start := "0-0"
	dropped := 0
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.cfg.Stream,
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return dropped, fmt.Errorf("xautoclaim: %w", err)
		}

		if len(msgs) > 0 {
			ids := make([]string, len(msgs))
			for i, m := range msgs {
				ids[i] = m.ID
			}
			if err := b.remove(ctx, ids...); err != nil {
				return dropped, err
			}
			dropped += len(ids)
		}

		if next == "" || next == "0-0" {
			return dropped, nil
		}
		start = next
	}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) remove(ctx context.Context, ids ...string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, b.cfg.Stream, b.cfg.Group, ids...)
		pipe.XDel(ctx, b.cfg.Stream, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("xack/xdel (stream=%s): %w", b.cfg.Stream, err)
	}
	return nil
}

// ParseMessage decodes a stream entry written by Push.
func ParseMessage(raw redis.XMessage) (Message, error) {
	eventID, err := parseInt64(raw.Values, "event_id")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(raw.Values, "attempt")
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:       raw.ID,
		EventID:  eventID,
		Category: model.Category(parseOptionalString(raw.Values, "category")),
		Attempt:  attempt,
		TraceID:  parseOptionalString(raw.Values, "trace_id"),
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
