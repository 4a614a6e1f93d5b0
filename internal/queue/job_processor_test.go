package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/revaspay/loyalty/internal/apperrors"
)

// fakeBroker is an in-memory Broker for processor tests
type fakeBroker struct {
	mu        sync.Mutex
	ready     map[string][]*Job
	completed []*Job
	failed    []*Job
	retried   []*Job
	delays    []time.Duration
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{ready: make(map[string][]*Job)}
}

func (b *fakeBroker) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	job := &Job{ID: "job-" + queueName, Queue: queueName, Payload: data, MaxRetries: DefaultRetryCount}
	for _, opt := range opts {
		opt(job)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready[queueName] = append(b.ready[queueName], job)
	return job.ID, nil
}

func (b *fakeBroker) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	b.mu.Lock()
	jobs := b.ready[queueName]
	if len(jobs) > 0 {
		b.ready[queueName] = jobs[1:]
		b.mu.Unlock()
		return jobs[0], nil
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (b *fakeBroker) Complete(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, job)
	return nil
}

func (b *fakeBroker) Fail(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, job)
	return nil
}

func (b *fakeBroker) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	job.RetryCount++
	b.retried = append(b.retried, job)
	b.delays = append(b.delays, delay)
	return nil
}

func (b *fakeBroker) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &QueueStats{Queue: queueName, Waiting: int64(len(b.ready[queueName]))}, nil
}

func (b *fakeBroker) completedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.completed)
}

// MockDeadLetterStore is a mock implementation of DeadLetterStore
type MockDeadLetterStore struct {
	mock.Mock
}

func (m *MockDeadLetterStore) Record(ctx context.Context, job Job, cause error) error {
	args := m.Called(ctx, job, cause)
	return args.Error(0)
}

func newTestProcessor(broker Broker, store DeadLetterStore) *JobProcessor {
	p := NewJobProcessor(broker, store, 1)
	p.backoff = func(retry int) time.Duration { return time.Duration(retry+1) * time.Second }
	p.pollTimeout = 5 * time.Millisecond
	return p
}

func TestProcessJobSuccess(t *testing.T) {
	broker := newFakeBroker()
	store := new(MockDeadLetterStore)
	p := newTestProcessor(broker, store)

	var seen Job
	p.RegisterHandler(QueueLoyaltyEvents, func(ctx context.Context, job Job) error {
		seen = job
		return nil
	})

	job := &Job{ID: "1", Queue: QueueLoyaltyEvents, Payload: json.RawMessage(`{"a":1}`), MaxRetries: 3}
	require.NoError(t, p.ProcessJob(context.Background(), job))

	assert.Equal(t, "1", seen.ID)
	assert.Len(t, broker.completed, 1)
	assert.Empty(t, broker.retried)
	store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJobRetriesTransientErrors(t *testing.T) {
	broker := newFakeBroker()
	store := new(MockDeadLetterStore)
	p := newTestProcessor(broker, store)

	p.RegisterHandler(QueueLoyaltyEvents, func(ctx context.Context, job Job) error {
		return apperrors.Transient(errors.New("connection reset"), "write failed")
	})

	job := &Job{ID: "1", Queue: QueueLoyaltyEvents, MaxRetries: 2}
	err := p.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Len(t, broker.retried, 1)
	assert.Equal(t, time.Second, broker.delays[0])
	assert.Contains(t, job.LastError, "connection reset")

	err = p.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Len(t, broker.retried, 2)
	assert.Equal(t, 2*time.Second, broker.delays[1])

	// Retries are used up so the job is dead lettered
	store.On("Record", mock.Anything, mock.AnythingOfType("queue.Job"), mock.Anything).Return(nil).Once()
	err = p.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Len(t, broker.retried, 2)
	assert.Len(t, broker.failed, 1)
	store.AssertExpectations(t)
}

func TestProcessJobDeadLettersPermanentErrors(t *testing.T) {
	broker := newFakeBroker()
	store := new(MockDeadLetterStore)
	p := newTestProcessor(broker, store)

	p.RegisterHandler(QueueLoyaltyEvents, func(ctx context.Context, job Job) error {
		return apperrors.Wrap(apperrors.ErrUnknownAction, "no rule for dance")
	})

	store.On("Record", mock.Anything, mock.MatchedBy(func(job Job) bool {
		return job.ID == "7"
	}), mock.MatchedBy(func(err error) bool {
		return errors.Is(err, apperrors.ErrUnknownAction)
	})).Return(nil).Once()

	job := &Job{ID: "7", Queue: QueueLoyaltyEvents, MaxRetries: 3}
	err := p.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Empty(t, broker.retried)
	assert.Len(t, broker.failed, 1)
	store.AssertExpectations(t)
}

func TestProcessJobWithoutHandler(t *testing.T) {
	broker := newFakeBroker()
	store := new(MockDeadLetterStore)
	store.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	p := newTestProcessor(broker, store)

	err := p.ProcessJob(context.Background(), &Job{ID: "x", Queue: "unknown"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNoHandler))
	assert.Len(t, broker.failed, 1)
	store.AssertExpectations(t)
}

func TestProcessJobNil(t *testing.T) {
	p := newTestProcessor(newFakeBroker(), nil)
	assert.Error(t, p.ProcessJob(context.Background(), nil))
}

func TestProcessorStartStop(t *testing.T) {
	broker := newFakeBroker()
	p := newTestProcessor(broker, nil)

	var mu sync.Mutex
	var payloads []map[string]string
	p.RegisterHandler(QueueReferralQualified, func(ctx context.Context, job Job) error {
		var payload map[string]string
		if err := job.Decode(&payload); err != nil {
			return err
		}
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
		return nil
	})

	_, err := broker.Enqueue(context.Background(), QueueReferralQualified, map[string]string{"share_code": "abc"})
	require.NoError(t, err)

	p.Start()
	require.Eventually(t, func() bool {
		return broker.completedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, "abc", payloads[0]["share_code"])
}

func TestCalculateBackoff(t *testing.T) {
	for retry := 0; retry < 12; retry++ {
		d := calculateBackoff(retry)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 3600*1.2*time.Second)
	}
	assert.Less(t, calculateBackoff(0), calculateBackoff(5))
}

func TestEnqueueOptions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &Job{RunAt: now, MaxRetries: DefaultRetryCount}
	WithDelay(time.Minute)(job)
	WithMaxRetries(7)(job)
	WithJobID("fixed")(job)

	assert.Equal(t, now.Add(time.Minute), job.RunAt)
	assert.Equal(t, 7, job.MaxRetries)
	assert.Equal(t, "fixed", job.ID)
	assert.False(t, job.Exhausted())
}
