package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/ledger"
)

// ExpiryTaskName is the scheduler tag of the points expiry sweep
const ExpiryTaskName = "points_expiry"

// ExpiryJob periodically expires credits that have passed their expiry date
type ExpiryJob struct {
	ledger *ledger.LedgerService
}

// NewExpiryJob creates a new expiry job
func NewExpiryJob(ledgerService *ledger.LedgerService) *ExpiryJob {
	return &ExpiryJob{ledger: ledgerService}
}

// Schedule registers the sweep on the scheduler
func (j *ExpiryJob) Schedule(s *queue.Scheduler, interval time.Duration) error {
	return s.Every(ExpiryTaskName, interval, j.Run)
}

// Run expires everything due as of now
func (j *ExpiryJob) Run(ctx context.Context) error {
	summary, err := j.ledger.ExpireDue(ctx, j.ledger.Now())
	if err != nil {
		return fmt.Errorf("failed to expire points: %w", err)
	}
	if summary.PointsExpired > 0 {
		log.Printf("Expired %d points across %d accounts", summary.PointsExpired, summary.Accounts)
	}
	return nil
}
