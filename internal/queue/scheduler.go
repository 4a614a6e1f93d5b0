package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// PeriodicTask is a function run on a fixed interval
type PeriodicTask func(ctx context.Context) error

// Scheduler runs periodic maintenance tasks
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a new scheduler running in UTC
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Every registers task to run every interval. A run is skipped while the previous one is still going.
func (s *Scheduler) Every(name string, interval time.Duration, task PeriodicTask) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for task %s", interval, name)
	}
	_, err := s.scheduler.Every(interval).Tag(name).WaitForSchedule().Do(func() {
		if err := task(s.ctx); err != nil {
			log.Printf("Scheduled task %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", name, err)
	}
	log.Printf("Scheduled task %s every %s", name, interval)
	return nil
}

// RunNow runs the tagged task immediately
func (s *Scheduler) RunNow(name string) error {
	return s.scheduler.RunByTag(name)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// Len returns the number of scheduled tasks
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}
