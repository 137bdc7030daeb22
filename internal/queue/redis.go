package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using go-redis/v9.
//
// Each queue is a Redis list. Dequeue moves messages to a per-queue
// pending list and records a visibility deadline in a sorted set;
// Delete removes the pending entry. Messages whose deadline passed are
// moved back to the main list on the next dequeue, so a consumer crash
// never loses a message.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a new RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, body []byte) error {
	raw, err := json.Marshal(Message{ID: uuid.NewString(), Body: body})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.client.LPush(ctx, QueueKey(queue), raw).Err()
}

func (q *RedisQueue) DequeueBatch(ctx context.Context, queue string, max int, visibility time.Duration) ([]Message, error) {
	if err := q.requeueExpired(ctx, queue); err != nil {
		return nil, err
	}

	deadline := float64(time.Now().Add(visibility).UnixMilli())
	var msgs []Message
	for len(msgs) < max {
		raw, err := q.client.LMove(ctx, QueueKey(queue), PendingKey(queue), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return msgs, err
		}
		if err := q.client.ZAdd(ctx, DeadlineKey(queue), redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
			return msgs, err
		}

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return msgs, fmt.Errorf("unmarshal message: %w", err)
		}
		msg.Queue = queue
		msg.Receipt = raw
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (q *RedisQueue) Delete(ctx context.Context, msg Message) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, PendingKey(msg.Queue), 1, msg.Receipt)
	pipe.ZRem(ctx, DeadlineKey(msg.Queue), msg.Receipt)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Length(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, QueueKey(queue)).Result()
}

// requeueExpired moves pending messages whose visibility deadline has
// passed back onto the main list.
func (q *RedisQueue) requeueExpired(ctx context.Context, queue string) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	expired, err := q.client.ZRangeByScore(ctx, DeadlineKey(queue), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, raw := range expired {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, PendingKey(queue), 1, raw)
		pipe.ZRem(ctx, DeadlineKey(queue), raw)
		pipe.LPush(ctx, QueueKey(queue), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
