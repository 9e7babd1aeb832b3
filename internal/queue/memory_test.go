package queue

import (
	"context"
	"testing"

	"emotion-pulse/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, user, channel string, ts int64) models.QueueMessage {
	return models.QueueMessage{
		EventID:   id,
		UserID:    user,
		ChannelID: channel,
		Text:      "text-" + id,
		Timestamp: ts,
	}
}

func TestEnqueueDeduplicatesEventID(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	require.NoError(t, err)
	assert.False(t, ok, "retried delivery must be suppressed")
	assert.Equal(t, 1, q.Pending())
}

func TestPerGroupOrderingSingleInFlight(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	_, _ = q.Enqueue(ctx, msg("e2", "u1", "c1", 2))
	_, _ = q.Enqueue(ctx, msg("e3", "u2", "c2", 1))

	d1, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, "e1", d1.Message.EventID)

	// e2 shares e1's group and e1 is in flight: only the other group delivers
	d2, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, "e3", d2.Message.EventID)

	d3, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, d3, "no further message until an ack")

	require.NoError(t, q.Ack(ctx, d1))
	d4, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d4)
	assert.Equal(t, "e2", d4.Message.EventID, "same-group delivery preserves enqueue order")
}

func TestNackRedeliversSameMessage(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, q.Nack(ctx, d))

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "e1", d.Message.EventID)
	assert.Equal(t, 2, d.Attempt)
}

func TestVisibilityExpiryRedelivers(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)

	// Consumer crashes without ack; the window lapses
	q.ExpireVisibility(d.Message.Group())

	d2, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, "e1", d2.Message.EventID)
}

func TestStaleAckDoesNotDropNextMessage(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	_, _ = q.Enqueue(ctx, msg("e2", "u1", "c1", 2))

	stalled, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", stalled.Message.EventID)

	// The stalled consumer's window lapses and e1 is redelivered elsewhere.
	q.ExpireVisibility(stalled.Message.Group())
	fresh, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", fresh.Message.EventID)
	assert.Equal(t, 2, fresh.Attempt)

	require.NoError(t, q.Ack(ctx, fresh))

	// The stalled consumer wakes up and acks; e2 now sits at the head and
	// must not be popped by that stale ack.
	require.NoError(t, q.Ack(ctx, stalled))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d, "next message survived the stale ack")
	assert.Equal(t, "e2", d.Message.EventID)
}

func TestStaleNackDoesNotReleaseNewHoldersLock(t *testing.T) {
	q := NewMemoryQueue(5)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))

	stalled, err := q.Receive(ctx)
	require.NoError(t, err)
	q.ExpireVisibility(stalled.Message.Group())

	fresh, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, fresh)

	// The stale nack must not unlock the group under the new holder; a
	// second in-flight delivery for one group would break ordering.
	require.NoError(t, q.Nack(ctx, stalled))
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, d, "group stays locked for the current holder")

	require.NoError(t, q.Ack(ctx, fresh))
	assert.Equal(t, 0, q.Pending())
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, msg("e1", "u1", "c1", 1))
	_, _ = q.Enqueue(ctx, msg("e2", "u1", "c1", 2))

	for i := 0; i < 2; i++ {
		d, err := q.Receive(ctx)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "e1", d.Message.EventID)
		require.NoError(t, q.Nack(ctx, d))
	}

	// Third receive moves e1 to the dead-letter path and delivers e2
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "e2", d.Message.EventID)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "e1", dead[0].EventID)
}
