package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyGroups  = "emoq:groups"
	keyDLQ     = "emoq:dlq"
	keyGroup   = "emoq:group:"
	keyLock    = "emoq:lock:"
	keyDedup   = "emoq:dedup:"
	keyAttempt = "emoq:attempts"
)

// Enqueue atomically: dedup on event id, append to the group list, mark the
// group live. SET NX on the dedup key rejects retried webhook deliveries.
var enqueueScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'EX', ARGV[3]) == false then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// Ack atomically, fenced on lock ownership: a consumer whose visibility
// window lapsed no longer owns the lock, and its stale ack must not touch
// the group (the head it delivered may already be acked and a newer message
// may sit there now). When owned: pop the head only if it is still this
// delivery's payload, clear the attempt counter, release the lock, and
// retire the group when its list drained.
var ackScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
  return 0
end
if redis.call('LINDEX', KEYS[2], 0) == ARGV[2] then
  redis.call('LPOP', KEYS[2])
  redis.call('HDEL', KEYS[3], ARGV[3])
end
redis.call('DEL', KEYS[1])
if redis.call('LLEN', KEYS[2]) == 0 then
  redis.call('SREM', KEYS[4], ARGV[4])
end
return 1
`)

// Release the group lock only while this delivery still owns it.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisConfig holds the tunables for the Redis-backed queue.
type RedisConfig struct {
	// VisibilityTimeout bounds how long a received message stays locked
	// before it becomes redeliverable.
	VisibilityTimeout time.Duration
	// MaxAttempts bounds deliveries before the message is dead-lettered.
	MaxAttempts int
	// DedupWindow is how long an event id is remembered for dedup.
	DedupWindow time.Duration
}

// DefaultRedisConfig mirrors the queue's production settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		VisibilityTimeout: 10 * time.Minute,
		MaxAttempts:       5,
		DedupWindow:       24 * time.Hour,
	}
}

// RedisQueue implements Queue on Redis. Delivery peeks the group head
// rather than popping it, so a crashed consumer loses nothing: the group
// lock expires and the same message is delivered again.
type RedisQueue struct {
	client  *redis.Client
	config  RedisConfig
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewRedisQueue creates a queue against the given Redis instance.
func NewRedisQueue(client *redis.Client, config RedisConfig, metrics *observability.Metrics, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		client:  client,
		config:  config,
		metrics: metrics,
		log:     log,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg models.QueueMessage) (bool, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("marshal queue message: %w", err)
	}

	group := msg.Group()
	dedupSeconds := int(q.config.DedupWindow.Seconds())
	res, err := enqueueScript.Run(ctx, q.client,
		[]string{keyDedup + msg.EventID, keyGroup + group, keyGroups},
		payload, group, dedupSeconds,
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	if res == 0 {
		q.log.Debug("duplicate delivery suppressed", "event_id", msg.EventID, "group", group)
		return false, nil
	}
	return true, nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	groups, err := q.client.SMembers(ctx, keyGroups).Result()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	for _, group := range groups {
		d, err := q.tryGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	return nil, nil
}

// tryGroup attempts to lock one group and deliver its head message. The
// lock value is a per-delivery token; Ack and Nack are fenced on it.
func (q *RedisQueue) tryGroup(ctx context.Context, group string) (*Delivery, error) {
	token := uuid.New().String()
	locked, err := q.client.SetNX(ctx, keyLock+group, token, q.config.VisibilityTimeout).Result()
	if err != nil {
		return nil, fmt.Errorf("lock group %s: %w", group, err)
	}
	if !locked {
		// Another consumer holds this conversation.
		return nil, nil
	}

	payload, err := q.client.LIndex(ctx, keyGroup+group, 0).Result()
	if err == redis.Nil {
		// Drained group left in the set; retire it and move on.
		q.client.SRem(ctx, keyGroups, group)
		q.releaseLock(ctx, group, token)
		return nil, nil
	}
	if err != nil {
		q.releaseLock(ctx, group, token)
		return nil, fmt.Errorf("peek group %s: %w", group, err)
	}

	var msg models.QueueMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		// Malformed payload is a permanent failure: dead-letter without retry.
		q.log.LogError(err, "malformed queue payload, dead-lettering", "group", group)
		if dlqErr := q.moveHeadToDLQ(ctx, group, payload, ""); dlqErr != nil {
			return nil, dlqErr
		}
		return nil, nil
	}

	attempt, err := q.client.HIncrBy(ctx, keyAttempt, msg.EventID, 1).Result()
	if err != nil {
		q.releaseLock(ctx, group, token)
		return nil, fmt.Errorf("count attempt: %w", err)
	}

	if int(attempt) > q.config.MaxAttempts {
		q.log.Warn("delivery attempts exhausted, dead-lettering",
			"event_id", msg.EventID, "group", group, "attempts", attempt)
		if dlqErr := q.moveHeadToDLQ(ctx, group, payload, msg.EventID); dlqErr != nil {
			return nil, dlqErr
		}
		return nil, nil
	}

	return &Delivery{Message: msg, Attempt: int(attempt), token: token, payload: payload}, nil
}

func (q *RedisQueue) releaseLock(ctx context.Context, group, token string) {
	if err := unlockScript.Run(ctx, q.client, []string{keyLock + group}, token).Err(); err != nil {
		q.log.LogError(err, "release group lock failed", "group", group)
	}
}

func (q *RedisQueue) moveHeadToDLQ(ctx context.Context, group, payload, eventID string) error {
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, keyDLQ, payload)
	pipe.LPop(ctx, keyGroup+group)
	if eventID != "" {
		pipe.HDel(ctx, keyAttempt, eventID)
	}
	pipe.Del(ctx, keyLock+group)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter %s: %w", group, err)
	}
	if q.metrics != nil {
		q.metrics.DeadLetters.Inc()
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	group := d.Message.Group()
	res, err := ackScript.Run(ctx, q.client,
		[]string{keyLock + group, keyGroup + group, keyAttempt, keyGroups},
		d.token, d.payload, d.Message.EventID, group,
	).Int()
	if err != nil {
		return fmt.Errorf("ack %s: %w", d.Message.EventID, err)
	}
	if res == 0 {
		// Visibility lapsed and the message was redelivered elsewhere; that
		// consumer now owns the group and this delivery's work is void.
		q.log.Warn("stale ack ignored", "event_id", d.Message.EventID, "group", group)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	// Leave the message at the head; release the conversation only if this
	// delivery still owns it.
	if err := unlockScript.Run(ctx, q.client,
		[]string{keyLock + d.Message.Group()}, d.token,
	).Err(); err != nil {
		return fmt.Errorf("nack %s: %w", d.Message.EventID, err)
	}
	return nil
}

func (q *RedisQueue) DeadLetters(ctx context.Context) ([]models.QueueMessage, error) {
	payloads, err := q.client.LRange(ctx, keyDLQ, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]models.QueueMessage, 0, len(payloads))
	for _, p := range payloads {
		var msg models.QueueMessage
		if err := json.Unmarshal([]byte(p), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
