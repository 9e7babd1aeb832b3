package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

func seedStore(t *testing.T, n int) *store.MemoryEventStore {
	t.Helper()
	st := store.NewMemoryEventStore()
	for i := 0; i < n; i++ {
		e := &models.Event{
			EventID:     fmt.Sprintf("Ev%04d", i),
			UserID:      fmt.Sprintf("U%d", i%3),
			ChannelID:   "C1",
			ChannelType: "channel",
			Text:        "hello",
			Timestamp:   1700000000 + int64(i),
			Date:        "2023-11-15",
			Month:       "2023-11",
		}
		e.SetScores(models.EmotionScores{Joy: 0.5, Anger: float64(i%10) / 10})
		created, err := st.Put(context.Background(), e)
		require.NoError(t, err)
		require.True(t, created)
	}
	return st
}

func decodeProcessed(t *testing.T, data []byte) []ProcessedRecord {
	t.Helper()
	var out []ProcessedRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec ProcessedRecord
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestExporterWritesShardsThenMarker(t *testing.T) {
	st := seedStore(t, 7)
	storage := NewMemoryStorage()
	exp := NewExporter(st, storage, observability.NewMetrics(), testLogger(), 3)

	markerKey, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, IsCompletionMarker(markerKey))

	// 7 records at shard size 3 -> 3 shards plus the marker.
	keys, err := storage.List(context.Background(), "exports/")
	require.NoError(t, err)
	require.Len(t, keys, 4)

	body, err := storage.Get(context.Background(), markerKey)
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, 7, m.RecordCount)
	assert.Len(t, m.Files, 3)
	for _, f := range m.Files {
		assert.Contains(t, keys, f)
	}
}

func TestExportRoundTripEveryRecordExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 12)
	storage := NewMemoryStorage()

	exp := NewExporter(st, storage, observability.NewMetrics(), testLogger(), 5)
	markerKey, err := exp.Run(ctx)
	require.NoError(t, err)

	tr := NewTransformer(storage, observability.NewMetrics(), testLogger(), "processed/")
	require.NoError(t, tr.HandleObjectCreated(ctx, markerKey))

	processedKeys, err := storage.List(ctx, "processed/")
	require.NoError(t, err)
	require.Len(t, processedKeys, 3, "one processed file per shard")

	seen := make(map[string]ProcessedRecord)
	for _, key := range processedKeys {
		data, err := storage.Get(ctx, key)
		require.NoError(t, err)
		for _, rec := range decodeProcessed(t, data) {
			_, dup := seen[rec.EventID]
			require.False(t, dup, "record %s exported twice", rec.EventID)
			seen[rec.EventID] = rec
		}
	}
	require.Len(t, seen, 12)

	rec := seen["Ev0003"]
	assert.Equal(t, "U0", rec.UserID)
	assert.Equal(t, "C1", rec.ChannelID)
	assert.Equal(t, int64(1700000003), rec.Timestamp)
	assert.Equal(t, "2023-11-15", rec.Date)
	assert.Equal(t, "2023-11", rec.Month)
	assert.InDelta(t, 0.5, rec.Joy, 1e-9)
	assert.InDelta(t, 0.3, rec.Anger, 1e-9)
}

func TestTransformerIgnoresNonMarkerObjects(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Put(ctx, "exports/abc/data/part-00000.json", []byte("{}\n")))

	tr := NewTransformer(storage, observability.NewMetrics(), testLogger(), "processed/")
	require.NoError(t, tr.HandleObjectCreated(ctx, "exports/abc/data/part-00000.json"))

	processed, err := storage.List(ctx, "processed/")
	require.NoError(t, err)
	assert.Empty(t, processed, "shard notifications must not start a transform")
}

func TestTransformerClearsStaleProcessedRows(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 2)
	storage := NewMemoryStorage()
	require.NoError(t, storage.Put(ctx, "processed/part-99999.json", []byte("stale\n")))

	exp := NewExporter(st, storage, observability.NewMetrics(), testLogger(), 10)
	markerKey, err := exp.Run(ctx)
	require.NoError(t, err)

	tr := NewTransformer(storage, observability.NewMetrics(), testLogger(), "processed/")
	require.NoError(t, tr.Transform(ctx, markerKey))

	keys, err := storage.List(ctx, "processed/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotContains(t, keys, "processed/part-99999.json")
}

func TestIsCompletionMarker(t *testing.T) {
	assert.True(t, IsCompletionMarker("exports/abc/manifest-files.json"))
	assert.False(t, IsCompletionMarker("exports/abc/data/part-00000.json"))
	assert.False(t, IsCompletionMarker("exports/abc/manifest-files.json.tmp"))
	assert.False(t, IsCompletionMarker("manifest-files.json"), "bare key has no export prefix")
}

func TestEmptyStoreStillWritesMarker(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	exp := NewExporter(store.NewMemoryEventStore(), storage, observability.NewMetrics(), testLogger(), 5)

	markerKey, err := exp.Run(ctx)
	require.NoError(t, err)

	body, err := storage.Get(ctx, markerKey)
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Zero(t, m.RecordCount)
	assert.Empty(t, m.Files)

	tr := NewTransformer(storage, observability.NewMetrics(), testLogger(), "processed/")
	require.NoError(t, tr.Transform(ctx, markerKey))
	keys, err := storage.List(ctx, "processed/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestProcessedColumnSetIsStable(t *testing.T) {
	data, err := json.Marshal(ProcessedRecord{})
	require.NoError(t, err)
	var cols map[string]any
	require.NoError(t, json.Unmarshal(data, &cols))

	want := []string{
		"event_id", "user_id", "channel_id", "channel_type", "text",
		"timestamp", "date", "month",
		"joy", "sad", "anger", "fear", "disgust", "contempt", "surprise",
	}
	require.Len(t, cols, len(want))
	for _, c := range want {
		assert.Contains(t, cols, c)
	}
	assert.False(t, strings.Contains(string(data), "created_at"), "dump-only fields stay out of the analytics layout")
}
