package queue

import (
	"context"
	"testing"
	"time"

	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logCfg := logger.DefaultConfig()
	logCfg.Level = "error"

	q := NewRedisQueue(client, RedisConfig{
		VisibilityTimeout: 100 * time.Millisecond,
		MaxAttempts:       5,
		DedupWindow:       time.Minute,
	}, observability.NewMetrics(), logger.New(logCfg))
	return q, mr
}

func TestRedisQueueOrderingAndAck(t *testing.T) {
	q, _ := newRedisTestQueue(t)
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)
	assert.False(t, ok, "retried delivery must be suppressed")
	_, err = q.Enqueue(ctx, msg("e2", "u1", "c1", 2))
	require.NoError(t, err)

	d1, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, "e1", d1.Message.EventID)

	blocked, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, blocked, "one in flight per group")

	require.NoError(t, q.Ack(ctx, d1))
	d2, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, "e2", d2.Message.EventID)
	require.NoError(t, q.Ack(ctx, d2))

	drained, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, drained)
}

func TestRedisStaleAckDoesNotDropNextMessage(t *testing.T) {
	q, mr := newRedisTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, msg("e2", "u1", "c1", 2))
	require.NoError(t, err)

	stalled, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", stalled.Message.EventID)

	// The stalled consumer blows past its visibility window; the group lock
	// expires and e1 is redelivered to another consumer, which acks it.
	mr.FastForward(150 * time.Millisecond)

	fresh, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.Equal(t, "e1", fresh.Message.EventID)
	assert.Equal(t, 2, fresh.Attempt)
	require.NoError(t, q.Ack(ctx, fresh))

	// The stalled consumer wakes up and acks long after losing the lock.
	// e2 is at the head now and must survive.
	require.NoError(t, q.Ack(ctx, stalled))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d, "next message survived the stale ack")
	assert.Equal(t, "e2", d.Message.EventID)
}

func TestRedisStaleNackDoesNotReleaseNewHoldersLock(t *testing.T) {
	q, mr := newRedisTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)

	stalled, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, stalled)

	mr.FastForward(150 * time.Millisecond)

	fresh, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, fresh)

	// A stale nack must not unlock the group under the new holder.
	require.NoError(t, q.Nack(ctx, stalled))
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, d, "group stays locked for the current holder")

	require.NoError(t, q.Ack(ctx, fresh))
	drained, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, drained)
}
