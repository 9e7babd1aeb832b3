// The gateway receives the chat platform's webhook calls, verifies them and
// enqueues message events for scoring.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"emotion-pulse/backend/internal/ingest"
	"emotion-pulse/backend/internal/queue"
	"emotion-pulse/backend/pkg/config"
	"emotion-pulse/backend/pkg/health"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/pkg/middleware"
	"emotion-pulse/backend/shared/observability"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	log.Info("starting gateway", "port", cfg.Server.Port, "env", cfg.Server.Env)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	metrics := observability.NewMetrics()

	q := queue.NewRedisQueue(redisClient, queue.RedisConfig{
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		DedupWindow:       24 * time.Hour,
	}, metrics, log)

	checker := health.NewChecker(log)
	checker.Register("queue", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return q.Ping(ctx)
	})

	limiterOpts := middleware.DefaultRateLimiterOptions()
	limiterOpts.Limit = rate.Limit(cfg.Security.RateLimit)
	limiterOpts.Burst = cfg.Security.RateLimitBurst
	limiter := middleware.NewRateLimiter(log, limiterOpts)

	handler := ingest.NewWebhookHandler(cfg.Chat.VerificationToken, q, metrics, log)
	router := ingest.NewRouter(ingest.RouterDeps{
		Handler:     handler,
		Metrics:     metrics,
		Health:      checker,
		RateLimiter: limiter,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "gateway server failed")
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "graceful shutdown failed")
	}
}
