package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"
)

const finishJobName = "export_finish"

// ProcessedRecord is the analytics layout: one flat, typed column per
// record field. The column set must stay stable across exports so the
// downstream catalog keeps reading it without re-registration.
type ProcessedRecord struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ChannelType string `json:"channel_type"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
	Date        string `json:"date"`
	Month       string `json:"month"`

	Joy      float64 `json:"joy"`
	Sad      float64 `json:"sad"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Disgust  float64 `json:"disgust"`
	Contempt float64 `json:"contempt"`
	Surprise float64 `json:"surprise"`
}

// Transformer runs phase 2: on arrival of a completion marker it replaces
// the processed prefix with the flattened layout of that export's shards.
type Transformer struct {
	storage         ObjectStorage
	metrics         *observability.Metrics
	log             *logger.Logger
	processedPrefix string
}

// NewTransformer creates the phase-2 handler.
func NewTransformer(storage ObjectStorage, metrics *observability.Metrics, log *logger.Logger, processedPrefix string) *Transformer {
	if processedPrefix == "" {
		processedPrefix = "processed/"
	}
	if !strings.HasSuffix(processedPrefix, "/") {
		processedPrefix += "/"
	}
	return &Transformer{storage: storage, metrics: metrics, log: log, processedPrefix: processedPrefix}
}

// IsCompletionMarker reports whether an object key is an export completion
// marker. Object-created notifications fire for every shard too; only the
// marker may start a transform.
func IsCompletionMarker(key string) bool {
	return strings.HasSuffix(key, "/"+MarkerName)
}

// HandleObjectCreated is the notification entry point. Non-marker keys are
// expected traffic and are ignored without error.
func (t *Transformer) HandleObjectCreated(ctx context.Context, key string) error {
	if !IsCompletionMarker(key) {
		t.log.Debug("ignoring non-marker object", "key", key)
		return nil
	}
	return t.Transform(ctx, key)
}

// Transform rebuilds the processed prefix from the export the marker
// belongs to. Stale rows from the previous export are removed first so the
// prefix only ever holds one snapshot.
func (t *Transformer) Transform(ctx context.Context, markerKey string) error {
	t.metrics.JobRuns.WithLabelValues(finishJobName).Inc()
	log := t.log.WithJob(finishJobName, markerKey)

	if err := t.clearProcessed(ctx); err != nil {
		t.metrics.JobFailures.WithLabelValues(finishJobName).Inc()
		return err
	}

	dataPrefix := strings.TrimSuffix(markerKey, MarkerName) + dataFolder
	shardKeys, err := t.storage.List(ctx, dataPrefix)
	if err != nil {
		t.metrics.JobFailures.WithLabelValues(finishJobName).Inc()
		return fmt.Errorf("list export shards: %w", err)
	}

	records := 0
	for _, shardKey := range shardKeys {
		n, err := t.transformShard(ctx, shardKey)
		if err != nil {
			t.metrics.JobFailures.WithLabelValues(finishJobName).Inc()
			return fmt.Errorf("transform %s: %w", shardKey, err)
		}
		records += n
	}

	log.Info("transform complete", "shards", len(shardKeys), "records", records)
	return nil
}

func (t *Transformer) clearProcessed(ctx context.Context) error {
	old, err := t.storage.List(ctx, t.processedPrefix)
	if err != nil {
		return fmt.Errorf("list processed prefix: %w", err)
	}
	for _, key := range old {
		if err := t.storage.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete stale processed object: %w", err)
		}
	}
	return nil
}

func (t *Transformer) transformShard(ctx context.Context, shardKey string) (int, error) {
	raw, err := t.storage.Get(ctx, shardKey)
	if err != nil {
		return 0, err
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	records := 0

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row shardRow
		if err := json.Unmarshal(line, &row); err != nil {
			return 0, fmt.Errorf("decode shard row: %w", err)
		}
		if err := enc.Encode(flatten(row)); err != nil {
			return 0, fmt.Errorf("encode processed row: %w", err)
		}
		records++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan shard: %w", err)
	}

	outKey := t.processedPrefix + baseName(shardKey)
	if err := t.storage.Put(ctx, outKey, out.Bytes()); err != nil {
		return 0, err
	}
	return records, nil
}

func flatten(row shardRow) ProcessedRecord {
	e := row.Item
	return ProcessedRecord{
		EventID:     e.EventID,
		UserID:      e.UserID,
		ChannelID:   e.ChannelID,
		ChannelType: e.ChannelType,
		Text:        e.Text,
		Timestamp:   e.Timestamp,
		Date:        e.Date,
		Month:       e.Month,
		Joy:         e.Joy,
		Sad:         e.Sad,
		Anger:       e.Anger,
		Fear:        e.Fear,
		Disgust:     e.Disgust,
		Contempt:    e.Contempt,
		Surprise:    e.Surprise,
	}
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
