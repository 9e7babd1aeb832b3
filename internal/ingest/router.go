package ingest

import (
	"net/http"

	apperrors "emotion-pulse/backend/pkg/errors"
	"emotion-pulse/backend/pkg/health"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/pkg/middleware"
	"emotion-pulse/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// RouterDeps carries the gateway's wiring.
type RouterDeps struct {
	Handler     *WebhookHandler
	Metrics     *observability.Metrics
	Health      *health.Checker
	RateLimiter *middleware.RateLimiter
	Logger      *logger.Logger
}

// NewRouter builds the gateway's gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(logger.Middleware(deps.Logger))
	r.Use(apperrors.Recovery(deps.Logger))
	r.Use(apperrors.ErrorHandler(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		components, healthy := deps.Health.Report()
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"components": components, "healthy": healthy})
	})

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	webhook := r.Group("/")
	if deps.RateLimiter != nil {
		webhook.Use(deps.RateLimiter.Middleware())
	}
	webhook.POST("/webhook", deps.Handler.HandleWebhook)

	return r
}
