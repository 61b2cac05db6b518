// Package queue implements the durable priority job queue (spec §4.3): three
// strict-priority lists (high/default/low), a per-job inflight marker for
// crash recovery, and a retry/dead-letter path for exhausted attempts.
// Grounded in original_source's Redis+RQ queue (see SPEC_FULL.md §4); no
// example repo imports a Redis client, so this is the idiomatic Go analogue
// of that design rather than a port of pack code.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imageverify/api/internal/apperr"
	"imageverify/api/internal/model"
)

const (
	keyHigh     = "jobs:high"
	keyDefault  = "jobs:default"
	keyLow      = "jobs:low"
	keyInflight = "jobs:inflight"          // hash: job_id -> json, for crash recovery
	keyDeadline = "jobs:inflight:deadline" // zset: job_id -> unix deadline, gates Recover
	keyRetry    = "jobs:retry"             // zset: job json -> unix next-attempt time
	keyDead     = "jobs:dead"
)

const maxAttempts = 3

// backoffSchedule is the retry delay per attempt (spec §4.3: "10s, 30s,
// 60s"); an attempt count beyond the schedule's length reuses its last entry.
var backoffSchedule = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

type Queue struct {
	rdb        *redis.Client
	jobTimeout time.Duration
}

// New builds a Queue. jobTimeout bounds how long a job may sit inflight
// before Recover considers it orphaned by a crashed worker.
func New(rdb *redis.Client, jobTimeout time.Duration) *Queue {
	return &Queue{rdb: rdb, jobTimeout: jobTimeout}
}

func listKey(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return keyHigh
	case model.PriorityLow:
		return keyLow
	default:
		return keyDefault
	}
}

// Enqueue pushes job onto its priority list. A job without a valid Scenario
// is rejected outright (spec §4.3 invariant) rather than silently defaulted.
func (q *Queue) Enqueue(ctx context.Context, job model.Job) error {
	if !job.Scenario.Valid() {
		return fmt.Errorf("%w: scenario %q is not valid", apperr.ErrFatalBadJob, job.Scenario)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.JobID, err)
	}
	if err := q.rdb.LPush(ctx, listKey(job.Priority), data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue job %s: %w", job.JobID, err)
	}
	return nil
}

// Depth returns the combined length of all three priority lists, used to
// enforce QueueDepthLimit at ingress (spec §4.3 backpressure).
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	pipe := q.rdb.Pipeline()
	h := pipe.LLen(ctx, keyHigh)
	d := pipe.LLen(ctx, keyDefault)
	l := pipe.LLen(ctx, keyLow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return h.Val() + d.Val() + l.Val(), nil
}

// Pop blocks up to timeout for the next job, checking high before default
// before low every call — strict priority, not weighted round-robin
// (spec §4.3). The popped job is mirrored into the inflight hash so a
// crashed worker's job can be recovered by Recover.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (model.Job, error) {
	res, err := q.rdb.BLPop(ctx, timeout, keyHigh, keyDefault, keyLow).Result()
	if err == redis.Nil {
		return model.Job{}, redis.Nil
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("queue: pop: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return model.Job{}, fmt.Errorf("%w: unmarshal popped job: %v", apperr.ErrFatalBadJob, err)
	}

	deadline := time.Now().Add(q.jobTimeout)
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyInflight, job.JobID, res[1])
	pipe.ZAdd(ctx, keyDeadline, redis.Z{Score: float64(deadline.Unix()), Member: job.JobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Job{}, fmt.Errorf("queue: mark inflight %s: %w", job.JobID, err)
	}
	return job, nil
}

// Ack removes job from the inflight marker after it has been fully
// processed (spec §4.3: "a job is only considered done once notified").
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, keyInflight, jobID)
	pipe.ZRem(ctx, keyDeadline, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: ack %s: %w", jobID, err)
	}
	return nil
}

// deadLetter moves job to the dead-letter list once its attempts are
// exhausted.
func (q *Queue) deadLetter(ctx context.Context, job model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal dead job %s: %w", job.JobID, err)
	}
	if err := q.rdb.LPush(ctx, keyDead, data).Err(); err != nil {
		return fmt.Errorf("queue: dead-letter %s: %w", job.JobID, err)
	}
	return nil
}

// Retry schedules job for re-delivery after the backoff delay for its
// attempt number, or moves it to the dead-letter list once attempts are
// exhausted (spec §4.3 retry policy: "10s, 30s, 60s" backoff). The job is
// parked in the jobs:retry sorted set rather than re-enqueued immediately;
// PromoteDueRetries moves it back onto its priority list once the delay
// elapses.
func (q *Queue) Retry(ctx context.Context, job model.Job) error {
	defer q.Ack(ctx, job.JobID)

	attempt := job.Attempts
	job.Attempts++
	if job.Attempts >= maxAttempts {
		return q.deadLetter(ctx, job)
	}

	delay := backoffSchedule[len(backoffSchedule)-1]
	if attempt < len(backoffSchedule) {
		delay = backoffSchedule[attempt]
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal retry job %s: %w", job.JobID, err)
	}
	nextAttempt := time.Now().Add(delay).Unix()
	if err := q.rdb.ZAdd(ctx, keyRetry, redis.Z{Score: float64(nextAttempt), Member: data}).Err(); err != nil {
		return fmt.Errorf("queue: schedule retry %s: %w", job.JobID, err)
	}
	return nil
}

// PromoteDueRetries moves every retry-scheduled job whose backoff delay has
// elapsed back onto its priority list. Meant to run on a ticker from a
// background reaper goroutine (SPEC_FULL.md §6.3).
func (q *Queue) PromoteDueRetries(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	due, err := q.rdb.ZRangeByScore(ctx, keyRetry, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: promote due retries: %w", err)
	}
	n := 0
	for _, data := range due {
		var job model.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			q.rdb.ZRem(ctx, keyRetry, data)
			continue
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return n, err
		}
		q.rdb.ZRem(ctx, keyRetry, data)
		n++
	}
	return n, nil
}

// Recover reclaims jobs whose inflight deadline has elapsed — called
// once at worker startup to pick up work orphaned by a previous
// crash. Jobs whose deadline has not yet elapsed are left alone: they may
// still be legitimately in flight on a sibling worker, and re-enqueuing them
// unconditionally would cause duplicate concurrent execution (spec §5: 3
// worker instances by default).
func (q *Queue) Recover(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	expired, err := q.rdb.ZRangeByScore(ctx, keyDeadline, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: recover: %w", err)
	}
	n := 0
	for _, jobID := range expired {
		data, err := q.rdb.HGet(ctx, keyInflight, jobID).Result()
		if err == redis.Nil {
			q.rdb.ZRem(ctx, keyDeadline, jobID)
			continue
		}
		if err != nil {
			return n, fmt.Errorf("queue: recover %s: %w", jobID, err)
		}
		var job model.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			q.rdb.HDel(ctx, keyInflight, jobID)
			q.rdb.ZRem(ctx, keyDeadline, jobID)
			continue
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return n, err
		}
		q.rdb.HDel(ctx, keyInflight, jobID)
		q.rdb.ZRem(ctx, keyDeadline, jobID)
		n++
	}
	return n, nil
}
