// Package queue is the Redis-backed scene task queue. Delivery is
// at-least-once: a claimed message sits in the consumer's processing list
// until it is acked, requeued, or retried, and a crashed consumer's
// processing list is drained back to pending on the next start.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

const (
	keyPending = "storyreel:tasks:pending"
	keyDelayed = "storyreel:tasks:delayed"
	keyDead    = "storyreel:tasks:dead"

	retryBase = 5 * time.Second
	retryCap  = 5 * time.Minute
)

func keyProcessing(consumer string) string {
	return "storyreel:tasks:processing:" + consumer
}

// Envelope wraps a SceneTask with delivery bookkeeping.
type Envelope struct {
	ID         string           `json:"id"`
	Attempts   int              `json:"attempts"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Task       domain.SceneTask `json:"task"`
}

// Message is a claimed envelope. The raw payload is kept verbatim because
// list removal matches on exact bytes.
type Message struct {
	Envelope
	raw string
}

type Queue struct {
	rdb      *redis.Client
	consumer string
	log      infra.Logger
}

func New(rdb *redis.Client, consumer string, log infra.Logger) *Queue {
	return &Queue{rdb: rdb, consumer: consumer, log: log}
}

func newMessageID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}

// Enqueue appends tasks to the pending list in the order given.
func (q *Queue) Enqueue(ctx context.Context, tasks ...domain.SceneTask) error {
	if len(tasks) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(tasks))
	for _, t := range tasks {
		raw, err := json.Marshal(Envelope{ID: newMessageID(), EnqueuedAt: time.Now().UTC(), Task: t})
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		payloads = append(payloads, string(raw))
	}
	if err := q.rdb.LPush(ctx, keyPending, payloads...).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// ClaimBatch moves up to max due messages into this consumer's processing
// list and decodes them. Delayed messages whose backoff has elapsed are
// promoted to pending first.
func (q *Queue) ClaimBatch(ctx context.Context, max int) ([]Message, error) {
	if _, err := promoteDue(ctx, q.rdb); err != nil {
		q.log.Warn().Err(err).Msg("promoting delayed tasks failed")
	}

	out := make([]Message, 0, max)
	for len(out) < max {
		raw, err := q.rdb.LMove(ctx, keyPending, keyProcessing(q.consumer), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, fmt.Errorf("claim: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// Undecodable payloads go straight to the dead list.
			q.log.Error().Err(err).Msg("dropping undecodable task payload")
			q.moveRaw(ctx, raw, keyDead)
			continue
		}
		out = append(out, Message{Envelope: env, raw: raw})
	}
	return out, nil
}

// Ack drops a processed message from the processing list.
func (q *Queue) Ack(ctx context.Context, m Message) error {
	if err := q.rdb.LRem(ctx, keyProcessing(q.consumer), 1, m.raw).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// Requeue returns a message to the back of the pending list without touching
// its attempt count. Admission deferrals use this path.
func (q *Queue) Requeue(ctx context.Context, m Message) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing(q.consumer), 1, m.raw)
	pipe.LPush(ctx, keyPending, m.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return nil
}

// Retry counts a failed attempt and either schedules the message on the
// delayed set with exponential backoff or, once attempts are exhausted,
// parks it on the dead list.
func (q *Queue) Retry(ctx context.Context, m Message, maxRetries int) error {
	m.Attempts++
	raw, err := json.Marshal(m.Envelope)
	if err != nil {
		return fmt.Errorf("encode retry: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing(q.consumer), 1, m.raw)
	if m.Attempts >= maxRetries {
		q.log.Warn().
			Str("jobId", m.Task.JobID).
			Int("sceneIndex", m.Task.SceneIndex).
			Int("attempts", m.Attempts).
			Msg("task exhausted retries, parking on dead list")
		pipe.LPush(ctx, keyDead, string(raw))
	} else {
		due := time.Now().Add(backoff(m.Attempts))
		pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(due.UnixMilli()), Member: string(raw)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// Recover drains this consumer's processing list back to pending. Called on
// startup so messages claimed by a crashed instance are redelivered.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		raw, err := q.rdb.LMove(ctx, keyProcessing(q.consumer), keyPending, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover: %w", err)
		}
		_ = raw
		n++
	}
}

// delayedStore is the slice of redis commands promotion needs. *redis.Client
// satisfies it.
type delayedStore interface {
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

func promoteDue(ctx context.Context, rdb delayedStore) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, raw := range members {
		// ZRem is the claim: concurrent consumers see the same due members,
		// but only the one whose removal lands may push to pending.
		removed, err := rdb.ZRem(ctx, keyDelayed, raw).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := rdb.LPush(ctx, keyPending, raw).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) moveRaw(ctx context.Context, raw, dest string) {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing(q.consumer), 1, raw)
	pipe.LPush(ctx, dest, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error().Err(err).Msg("moving raw payload failed")
	}
}

// backoff grows 5s, 10s, 20s, ... capped at five minutes, with a little
// jitter so a burst of failures does not come due as a thundering herd.
func backoff(attempts int) time.Duration {
	d := retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryCap {
			d = retryCap
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d / 5)))
	return d + jitter
}
