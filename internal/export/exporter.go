package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"
)

const (
	// MarkerName is the completion marker filename. Its arrival under an
	// export prefix is what triggers the transform phase; nothing else does.
	MarkerName = "manifest-files.json"

	exportsPrefix = "exports/"
	dataFolder    = "data/"

	startJobName = "export_start"
)

// shardRow is one raw export line: the record wrapped in a dump envelope,
// the way a store backup lays it out before the transform flattens it.
type shardRow struct {
	Item       models.Event `json:"item"`
	ExportedAt int64        `json:"exported_at"`
}

// manifest is the completion marker body: the shard inventory of a
// finished export.
type manifest struct {
	ExportID    string   `json:"export_id"`
	Files       []string `json:"files"`
	RecordCount int      `json:"record_count"`
	CompletedAt int64    `json:"completed_at"`
}

// Exporter runs phase 1: a full scan of the store into NDJSON shards under
// exports/<id>/data/, followed by the completion marker. The marker is
// written last so its arrival guarantees every shard is in place.
type Exporter struct {
	store     store.EventStore
	storage   ObjectStorage
	metrics   *observability.Metrics
	log       *logger.Logger
	shardSize int
}

// NewExporter creates the phase-1 job.
func NewExporter(st store.EventStore, storage ObjectStorage, metrics *observability.Metrics, log *logger.Logger, shardSize int) *Exporter {
	if shardSize <= 0 {
		shardSize = 500
	}
	return &Exporter{store: st, storage: storage, metrics: metrics, log: log, shardSize: shardSize}
}

// Run exports every record and returns the marker key it wrote.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	e.metrics.JobRuns.WithLabelValues(startJobName).Inc()

	exportID := uuid.New().String()
	log := e.log.WithJob(startJobName, exportID)
	prefix := exportsPrefix + exportID + "/"

	m := manifest{ExportID: exportID}
	shard := 0
	now := time.Now().Unix()

	err := e.store.ForEachBatch(ctx, e.shardSize, func(events []models.Event) error {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := range events {
			if err := enc.Encode(shardRow{Item: events[i], ExportedAt: now}); err != nil {
				return fmt.Errorf("encode shard row: %w", err)
			}
		}
		key := fmt.Sprintf("%s%spart-%05d.json", prefix, dataFolder, shard)
		if err := e.storage.Put(ctx, key, buf.Bytes()); err != nil {
			return err
		}
		m.Files = append(m.Files, key)
		m.RecordCount += len(events)
		shard++
		return nil
	})
	if err != nil {
		e.metrics.JobFailures.WithLabelValues(startJobName).Inc()
		return "", fmt.Errorf("export scan: %w", err)
	}

	m.CompletedAt = time.Now().Unix()
	body, err := json.Marshal(m)
	if err != nil {
		e.metrics.JobFailures.WithLabelValues(startJobName).Inc()
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	markerKey := prefix + MarkerName
	if err := e.storage.Put(ctx, markerKey, body); err != nil {
		e.metrics.JobFailures.WithLabelValues(startJobName).Inc()
		return "", fmt.Errorf("write completion marker: %w", err)
	}

	log.Info("export complete", "records", m.RecordCount, "shards", shard, "marker", markerKey)
	return markerKey, nil
}
