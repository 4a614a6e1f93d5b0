package jobs

import (
	"time"

	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/earning"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/services/referral"
)

// RegisterAllJobHandlers registers all job handlers with the processor
func RegisterAllJobHandlers(
	p *queue.JobProcessor,
	earningSvc *earning.Service,
	referralSvc *referral.ReferralService,
	referralBonus int64,
) {
	// Register loyalty event job handlers
	RegisterLoyaltyEventJobHandlers(p, earningSvc)

	// Register referral qualified job handlers
	RegisterReferralQualifiedJobHandlers(p, referralSvc, referralBonus)
}

// ScheduleRecurringJobs schedules all recurring jobs
func ScheduleRecurringJobs(s *queue.Scheduler, ledgerSvc *ledger.LedgerService, expiryInterval time.Duration) error {
	// Schedule points expiry sweep
	if err := NewExpiryJob(ledgerSvc).Schedule(s, expiryInterval); err != nil {
		return err
	}

	return nil
}
