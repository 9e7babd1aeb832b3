// The export-start job writes a full snapshot of the event store to object
// storage: NDJSON shards followed by a completion marker. The weekly
// scheduler invokes it and does not wait for the transform phase.
package main

import (
	"context"
	"os"
	"time"

	"emotion-pulse/backend/internal/export"
	"emotion-pulse/backend/internal/store"
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

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
	exporter := export.NewExporter(eventStore, storage, metrics, log, cfg.Export.ShardSize)
	markerKey, runErr := exporter.Run(ctx)
	pushMetrics(cfg, metrics, log, "export-start")
	if runErr != nil {
		log.LogError(runErr, "export run failed")
		os.Exit(1)
	}
	log.Info("export run complete", "marker", markerKey)
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
