package jobs

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/earning"
)

// Event types accepted from upstream services
const (
	EventPurchaseCompleted = "purchase_completed"
	EventReviewPosted      = "review_posted"
	EventSignup            = "signup"
	EventBirthday          = "birthday"
)

// eventActions maps upstream event types onto earning actions
var eventActions = map[string]models.EarningAction{
	EventPurchaseCompleted: models.ActionPurchase,
	EventReviewPosted:      models.ActionReview,
	EventSignup:            models.ActionSignup,
	EventBirthday:          models.ActionBirthday,
}

// LoyaltyEventPayload represents the payload for a loyalty event job
type LoyaltyEventPayload struct {
	Type      string    `json:"type"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    float64   `json:"amount"`
	Reference string    `json:"reference"`
}

// Validate checks the payload before it is queued or processed
func (p LoyaltyEventPayload) Validate() error {
	if _, ok := eventActions[p.Type]; !ok {
		return apperrors.Validation("unsupported event type %q", p.Type)
	}
	if p.AccountID == uuid.Nil {
		return apperrors.Validation("account_id is required")
	}
	if strings.TrimSpace(p.Reference) == "" {
		return apperrors.Validation("reference is required")
	}
	if p.Amount < 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return apperrors.ErrInvalidAmount
	}
	return nil
}

// LoyaltyEventJob turns upstream business events into point accruals
type LoyaltyEventJob struct {
	earning *earning.Service
}

// NewLoyaltyEventJob creates a new loyalty event job handler
func NewLoyaltyEventJob(earningSvc *earning.Service) *LoyaltyEventJob {
	return &LoyaltyEventJob{earning: earningSvc}
}

// RegisterLoyaltyEventJobHandlers registers the loyalty event job handlers
func RegisterLoyaltyEventJobHandlers(p *queue.JobProcessor, earningSvc *earning.Service) {
	handler := NewLoyaltyEventJob(earningSvc)
	p.RegisterHandler(queue.QueueLoyaltyEvents, handler.Handle)
}

// EnqueueLoyaltyEvent validates and enqueues a loyalty event
func EnqueueLoyaltyEvent(ctx context.Context, broker queue.Broker, payload LoyaltyEventPayload, maxRetries int) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	id, err := broker.Enqueue(ctx, queue.QueueLoyaltyEvents, payload, queue.WithMaxRetries(maxRetries))
	if err != nil {
		return "", apperrors.Transient(err, "failed to enqueue loyalty event")
	}
	return id, nil
}

// Handle processes a loyalty event job. Redelivered events replay against the
// ledger's idempotency key and earn nothing twice.
func (j *LoyaltyEventJob) Handle(ctx context.Context, job queue.Job) error {
	var payload LoyaltyEventPayload
	if err := job.Decode(&payload); err != nil {
		return apperrors.Validation("failed to unmarshal loyalty event payload: %v", err)
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	action := eventActions[payload.Type]
	result, err := j.earning.Accrue(ctx, earning.Event{
		AccountID: payload.AccountID,
		Action:    action,
		Amount:    payload.Amount,
		Reference: payload.Reference,
	})
	if err != nil {
		return fmt.Errorf("failed to accrue points for %s %s: %w", payload.Type, payload.Reference, err)
	}

	if result.Replayed {
		log.Printf("Loyalty event %s %s already processed, skipping", payload.Type, payload.Reference)
		return nil
	}
	log.Printf("Processed loyalty event %s %s: %d points for account %s", payload.Type, payload.Reference, result.Points, payload.AccountID)
	return nil
}
