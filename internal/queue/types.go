package queue

import (
	"encoding/json"
	"math"
	"math/rand"
	"time"
)

const (
	// Queue names
	QueueLoyaltyEvents     = "loyalty_events"
	QueueReferralQualified = "referral_qualified"

	// Default values
	DefaultRetryCount = 3
	DefaultTTL        = 24 * time.Hour
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Exhausted reports whether the job has used all of its retries
func (j *Job) Exhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// QueueStats represents statistics for a queue
type QueueStats struct {
	Queue   string `json:"queue"`
	Waiting int64  `json:"waiting"`
	Delayed int64  `json:"delayed"`
}

// EnqueueOption modifies a job before it is enqueued
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// WithJobID sets a specific job ID
func WithJobID(id string) EnqueueOption {
	return func(j *Job) {
		j.ID = id
	}
}

// WithDelay defers the job
func WithDelay(delay time.Duration) EnqueueOption {
	return func(j *Job) {
		j.RunAt = j.RunAt.Add(delay)
	}
}

// calculateBackoff calculates the backoff duration for a retry
func calculateBackoff(retry int) time.Duration {
	// Exponential backoff with jitter
	// Base: 5 seconds
	// Max: 1 hour
	base := 5.0
	maxSeconds := 3600.0

	seconds := math.Min(maxSeconds, base*math.Pow(2, float64(retry)))

	// Add jitter (±20%)
	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds) * time.Second
}
