// The digest job posts the previous business day's per-user emotion summary.
// A weekday scheduler invokes it once per morning; it performs a single run
// and exits.
package main

import (
	"context"
	"os"
	"time"

	"emotion-pulse/backend/internal/classifier"
	"emotion-pulse/backend/internal/digest"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/pkg/config"
	"emotion-pulse/backend/pkg/logger"
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

	model := classifier.NewOpenAIClassifier(cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.MaxTokens, cfg.Classifier.Temperature, log)

	metrics := observability.NewMetrics()
	job := digest.New(digest.Options{
		Store:     eventStore,
		Advice:    model,
		Notifier:  chat.NewClient(cfg.Chat.APIBaseURL, cfg.Chat.BotToken, log),
		Metrics:   metrics,
		Logger:    log,
		ChannelID: cfg.Chat.AlertChannelID,
		Location:  loc,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	runErr := job.Run(ctx)
	pushMetrics(cfg, metrics, log, "digest")
	if runErr != nil {
		log.LogError(runErr, "digest run failed")
		os.Exit(1)
	}
	log.Info("digest run complete")
}

// pushMetrics ships the run counters to the Pushgateway when one is
// configured; the process exits before any scraper could collect them.
func pushMetrics(cfg *config.Config, metrics *observability.Metrics, log *logger.Logger, job string) {
	if cfg.Metrics.PushGatewayURL == "" {
		return
	}
	if err := metrics.Push(cfg.Metrics.PushGatewayURL, job); err != nil {
		log.LogError(err, "metrics push failed", "job", job)
	}
}
