package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/skillflow/internal/http/handler/webhook"
	"basegraph.app/skillflow/internal/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the engine with every route the service exposes.
func New(serviceName string, wh *webhook.GitHubWebhookHandler, db Pinger) *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware(serviceName), middleware.Recovery(), middleware.Logger())

	r.GET("/health", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	WebhookRouter(r.Group("/webhook"), wh)
	return r
}

func WebhookRouter(rg *gin.RouterGroup, h *webhook.GitHubWebhookHandler) {
	rg.POST("", h.HandleEvent)
	rg.POST("/github", h.HandleEvent)
	rg.GET("/health", h.Health)
	rg.GET("/pending", h.Pending)
	rg.POST("/process", h.Process)
	rg.GET("/stats", h.Stats)
}
