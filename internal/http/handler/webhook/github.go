package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/service"
	ghevent "basegraph.app/skillflow/internal/webhook"
	"basegraph.app/skillflow/internal/worker"
)

const serviceName = "skillflow"

type PoolStats interface {
	Stats(ctx context.Context) worker.Stats
}

type Reconciler interface {
	ReconcileOnce(ctx context.Context) (enqueued, skipped int, err error)
}

type EventStats interface {
	CountUnresolved(ctx context.Context, maxRetries int) (int, error)
	Stats(ctx context.Context) (model.EventStats, error)
}

type ProcessingStats interface {
	Snapshot() service.StatsSnapshot
}

type Config struct {
	Secret      string
	MaxBodySize int64
	MaxRetries  int
}

// GitHubWebhookHandler accepts GitHub deliveries. It only verifies, parses
// and records them; the worker pool does the rest.
type GitHubWebhookHandler struct {
	cfg        Config
	ingest     service.IngestService
	pool       PoolStats
	reconciler Reconciler
	events     EventStats
	processing ProcessingStats
	now        func() time.Time
}

func NewGitHubWebhookHandler(
	cfg Config,
	ingest service.IngestService,
	pool PoolStats,
	reconciler Reconciler,
	events EventStats,
	processing ProcessingStats,
) *GitHubWebhookHandler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 25 << 20
	}
	return &GitHubWebhookHandler{
		cfg:        cfg,
		ingest:     ingest,
		pool:       pool,
		reconciler: reconciler,
		events:     events,
		processing: processing,
		now:        time.Now,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodySize))
	if err != nil {
		slog.WarnContext(ctx, "reading webhook body failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !ghevent.VerifySignature(ctx, body, c.GetHeader(ghevent.HeaderSignature), h.cfg.Secret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := ghevent.Parse(c.Request.Header, body, h.now())
	if err != nil {
		slog.WarnContext(ctx, "invalid webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: &ev.DeliveryID,
		EventType:  &ev.EventType,
		Component:  "skillflow.http.webhook",
	})

	res, err := h.ingest.Ingest(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "recording webhook failed", "error", err, "kind", domain.KindOf(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	switch {
	case res.Duplicate:
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "event_id": res.Event.ID})
	case !res.Enqueued:
		// stored as pending; the reconciler enqueues it once there is room
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue full", "event_id": res.Event.ID})
	case ev.EventType == "ping":
		c.JSON(http.StatusOK, gin.H{"status": "pong", "event_id": res.Event.ID})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "event_id": res.Event.ID})
	}
}

func (h *GitHubWebhookHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := "healthy"
	stats := gin.H{
		"queue":      h.pool.Stats(ctx),
		"processing": h.processing.Snapshot(),
	}
	store, err := h.events.Stats(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reading event stats failed", "error", err)
		status = "degraded"
	} else {
		stats["store"] = store
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": serviceName,
		"stats":   stats,
	})
}

func (h *GitHubWebhookHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.events.CountUnresolved(ctx, h.cfg.MaxRetries)
	if err != nil {
		slog.ErrorContext(ctx, "counting pending events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pending events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": n})
}

// Process enqueues every unresolved event. Events already in flight are
// skipped, so calling it repeatedly is harmless.
func (h *GitHubWebhookHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()

	enqueued, skipped, err := h.reconciler.ReconcileOnce(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "processing pending events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue pending events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": enqueued, "skipped": skipped})
}

func (h *GitHubWebhookHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.events.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reading event stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}

	processing := h.processing.Snapshot()
	last := stats.LastProcessedAt
	if last == nil {
		last = processing.LastProcessedAt
	}
	c.JSON(http.StatusOK, gin.H{
		"by_category":       stats.ByCategory,
		"by_status":         stats.ByStatus,
		"total":             stats.Total,
		"processing":        processing,
		"last_processed_at": last,
	})
}
