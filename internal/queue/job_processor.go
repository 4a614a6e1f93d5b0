package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/metrics"
)

// JobHandler processes a single job
type JobHandler func(ctx context.Context, job Job) error

// DeadLetterStore records jobs that will not be retried
type DeadLetterStore interface {
	Record(ctx context.Context, job Job, cause error) error
}

// errNoHandler is returned for jobs on a queue with no registered handler
var errNoHandler = errors.New("no handler registered")

// JobProcessor runs a pool of workers that pull jobs from a broker
type JobProcessor struct {
	broker      Broker
	deadLetters DeadLetterStore
	handlers    map[string]JobHandler
	workerCount int
	pollTimeout time.Duration
	backoff     func(retry int) time.Duration
	wg          sync.WaitGroup
	processing  sync.Map
	ctx         context.Context
	cancel      context.CancelFunc
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewJobProcessor creates a new JobProcessor
func NewJobProcessor(broker Broker, deadLetters DeadLetterStore, workerCount int) *JobProcessor {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobProcessor{
		broker:      broker,
		deadLetters: deadLetters,
		handlers:    make(map[string]JobHandler),
		workerCount: workerCount,
		pollTimeout: time.Second,
		backoff:     calculateBackoff,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a handler for a specific queue. Handlers must be
// registered before Start.
func (p *JobProcessor) RegisterHandler(queueName string, handler JobHandler) {
	p.handlers[queueName] = handler
}

// Queues returns the names of the queues with a registered handler
func (p *JobProcessor) Queues() []string {
	queues := make([]string, 0, len(p.handlers))
	for queue := range p.handlers {
		queues = append(queues, queue)
	}
	return queues
}

// Start starts the job processor
func (p *JobProcessor) Start() {
	p.startOnce.Do(func() {
		log.Printf("Starting job processor with %d workers", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop stops the job processor and waits for in-flight jobs
func (p *JobProcessor) Stop() {
	p.stopOnce.Do(func() {
		log.Println("Stopping job processor")
		p.cancel()
		p.wg.Wait()
		log.Println("Job processor stopped")
	})
}

// worker is a goroutine that processes jobs
func (p *JobProcessor) worker(id int) {
	defer p.wg.Done()

	queues := p.Queues()
	if len(queues) == 0 {
		log.Printf("Worker %d exiting: no queues registered", id)
		return
	}

	for {
		for _, queueName := range queues {
			if p.ctx.Err() != nil {
				return
			}

			job, err := p.broker.Dequeue(p.ctx, queueName, p.pollTimeout)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				log.Printf("Worker %d error getting job from queue %s: %v", id, queueName, err)
				time.Sleep(p.pollTimeout)
				continue
			}
			if job == nil {
				continue
			}

			p.processing.Store(job.ID, true)
			if err := p.ProcessJob(p.ctx, job); err != nil {
				log.Printf("Worker %d error processing job %s: %v", id, job.ID, err)
			}
			p.processing.Delete(job.ID)
		}
	}
}

// ProcessJob runs the handler for job and settles it with the broker.
// Retryable failures are retried with backoff until the job is exhausted,
// everything else goes straight to the dead letter store.
func (p *JobProcessor) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	handler, ok := p.handlers[job.Queue]
	if !ok {
		err := fmt.Errorf("%w for queue %s", errNoHandler, job.Queue)
		p.deadLetter(ctx, job, err)
		return err
	}

	err := handler(ctx, *job)
	if err == nil {
		metrics.QueueJobs.WithLabelValues(job.Queue, "completed").Inc()
		return p.broker.Complete(ctx, job)
	}

	job.LastError = err.Error()
	if apperrors.IsRetryable(err) && !job.Exhausted() {
		metrics.QueueJobs.WithLabelValues(job.Queue, "retried").Inc()
		if retryErr := p.broker.Retry(ctx, job, p.backoff(job.RetryCount)); retryErr != nil {
			return fmt.Errorf("failed to retry job: %w", retryErr)
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	p.deadLetter(ctx, job, err)
	return fmt.Errorf("job processing failed: %w", err)
}

func (p *JobProcessor) deadLetter(ctx context.Context, job *Job, cause error) {
	metrics.QueueJobs.WithLabelValues(job.Queue, "failed").Inc()
	if p.deadLetters != nil {
		if err := p.deadLetters.Record(ctx, *job, cause); err != nil {
			log.Printf("Error recording failed job %s: %v", job.ID, err)
		}
	}
	if err := p.broker.Fail(ctx, job); err != nil {
		log.Printf("Error marking job %s as failed: %v", job.ID, err)
	}
}

// IsProcessing checks if a job is currently being processed
func (p *JobProcessor) IsProcessing(jobID string) bool {
	_, ok := p.processing.Load(jobID)
	return ok
}
