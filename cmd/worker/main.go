// The worker consumes queued message events, scores them, raises immediate
// warnings and writes the records to the event store.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"emotion-pulse/backend/internal/classifier"
	"emotion-pulse/backend/internal/queue"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/internal/worker"
	"emotion-pulse/backend/pkg/config"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/pkg/resilience"
	"emotion-pulse/backend/shared/chat"
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
	log.Info("starting worker", "concurrency", cfg.Worker.Concurrency)

	loc, err := cfg.Location()
	if err != nil {
		log.LogError(err, "invalid display timezone", "timezone", cfg.Timezone)
		os.Exit(1)
	}

	db, err := config.NewDB(cfg)
	if err != nil {
		log.LogError(err, "event store unavailable")
		os.Exit(1)
	}
	eventStore, err := store.NewGormEventStore(db)
	if err != nil {
		log.LogError(err, "event store migration failed")
		os.Exit(1)
	}
	defer eventStore.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	metrics := observability.NewMetrics()
	metricsSrv := metrics.Serve(":" + cfg.Server.Port)

	q := queue.NewRedisQueue(redisClient, queue.RedisConfig{
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		DedupWindow:       24 * time.Hour,
	}, metrics, log)

	w := worker.New(worker.Options{
		Queue:            q,
		Store:            eventStore,
		Classifier:       classifier.NewOpenAIClassifier(cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.MaxTokens, cfg.Classifier.Temperature, log),
		Notifier:         chat.NewClient(cfg.Chat.APIBaseURL, cfg.Chat.BotToken, log),
		Breaker:          resilience.NewCircuitBreaker(resilience.DefaultConfig("classifier"), log),
		Metrics:          metrics,
		Logger:           log,
		WarningThreshold: cfg.Worker.WarningThreshold,
		AlertChannelID:   cfg.Chat.AlertChannelID,
		WriteRetries:     cfg.Worker.WriteRetries,
		PollInterval:     cfg.Worker.PollInterval,
		Location:         loc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Info("shutting down worker")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
