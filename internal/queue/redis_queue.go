package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Broker is the job transport used by producers and the job processor
type Broker interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error)
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	Stats(ctx context.Context, queueName string) (*QueueStats, error)
}

// RedisQueue implements Broker using Redis lists for ready jobs and a sorted
// set per queue for delayed jobs.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		now:    time.Now,
	}
}

func jobKey(id string) string {
	return "jobs:" + id
}

func delayedKey(queueName string) string {
	return "delayed:" + queueName
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := q.now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now,
	}
	for _, opt := range opts {
		opt(job)
	}

	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	if job.RunAt.After(q.now()) {
		pipe.ZAdd(ctx, delayedKey(job.Queue), &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: jobBytes,
		})
	} else {
		pipe.LPush(ctx, job.Queue, jobBytes)
	}
	pipe.HSet(ctx, jobKey(job.ID), "data", jobBytes)
	pipe.Expire(ctx, jobKey(job.ID), DefaultTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}
	return nil
}

// Dequeue pops the next ready job, waiting up to timeout. It returns nil when none is ready.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	q.moveReadyDelayedJobs(ctx, queueName)

	result, err := q.client.BRPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = q.now().UTC()
	q.saveStatus(ctx, &job)

	return &job, nil
}

// moveReadyDelayedJobs moves delayed jobs that are ready to run to the main queue
func (q *RedisQueue) moveReadyDelayedJobs(ctx context.Context, queueName string) {
	now := q.now().Unix()

	jobs, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		log.Printf("Error getting ready delayed jobs: %v", err)
		return
	}

	for _, jobStr := range jobs {
		// ZRem first so two workers cannot both move the same job
		removed, err := q.client.ZRem(ctx, delayedKey(queueName), jobStr).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queueName, jobStr).Err(); err != nil {
			log.Printf("Error moving delayed job to main queue: %v", err)
		}
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = q.now().UTC()
	return q.saveStatus(ctx, job)
}

// Fail marks a job as failed without retrying it
func (q *RedisQueue) Fail(ctx context.Context, job *Job) error {
	job.Status = JobStatusFailed
	job.UpdatedAt = q.now().UTC()
	return q.saveStatus(ctx, job)
}

// Retry schedules the job to run again after delay
func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	job.RetryCount++
	job.Status = JobStatusPending
	job.UpdatedAt = q.now().UTC()
	job.RunAt = job.UpdatedAt.Add(delay)
	return q.push(ctx, job)
}

// Stats returns queue depth
func (q *RedisQueue) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	waiting, err := q.client.LLen(ctx, queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, delayedKey(queueName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed queue length: %w", err)
	}
	return &QueueStats{Queue: queueName, Waiting: waiting, Delayed: delayed}, nil
}

func (q *RedisQueue) saveStatus(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.HSet(ctx, jobKey(job.ID), "data", jobBytes).Err(); err != nil {
		log.Printf("Warning: failed to update status of job %s: %v", job.ID, err)
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
