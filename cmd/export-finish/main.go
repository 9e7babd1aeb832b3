// The export-finish handler reacts to object-created notifications on the
// export bucket. Keys are passed as arguments; only the completion marker
// starts a transform, everything else is ignored.
package main

import (
	"context"
	"os"
	"time"

	"emotion-pulse/backend/internal/export"
	"emotion-pulse/backend/pkg/config"
	"emotion-pulse/backend/pkg/logger"
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

	keys := os.Args[1:]
	if len(keys) == 0 {
		log.Error("no object keys given")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	storage, err := export.NewS3Storage(ctx, export.S3Config{
		Bucket:       cfg.Export.Bucket,
		Region:       cfg.Export.Region,
		Endpoint:     cfg.Export.Endpoint,
		UsePathStyle: cfg.Export.UsePathStyle,
	})
	if err != nil {
		log.LogError(err, "object storage unavailable")
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	transformer := export.NewTransformer(storage, metrics, log, cfg.Export.ProcessedPrefix)
	var failed bool
	for _, key := range keys {
		if err := transformer.HandleObjectCreated(ctx, key); err != nil {
			log.LogError(err, "transform failed", "key", key)
			failed = true
		}
	}
	pushMetrics(cfg, metrics, log, "export-finish")
	if failed {
		os.Exit(1)
	}
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
