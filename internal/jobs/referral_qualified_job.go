package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/referral"
	"github.com/revaspay/loyalty/internal/utils"
)

// ReferralQualifiedPayload represents the payload for a referral qualified job.
// The referral is identified by id or by share code.
type ReferralQualifiedPayload struct {
	ReferralID   *uuid.UUID `json:"referral_id,omitempty"`
	ShareCode    string     `json:"share_code,omitempty"`
	RefereeEmail string     `json:"referee_email,omitempty"`
}

// Validate checks the payload before it is queued or processed
func (p ReferralQualifiedPayload) Validate() error {
	if (p.ReferralID == nil || *p.ReferralID == uuid.Nil) && strings.TrimSpace(p.ShareCode) == "" {
		return apperrors.Validation("referral_id or share_code is required")
	}
	return nil
}

// ReferralQualifiedJob completes a referral and pays the referrer's bonus
type ReferralQualifiedJob struct {
	referrals   *referral.ReferralService
	bonusPoints int64
}

// NewReferralQualifiedJob creates a new referral qualified job handler
func NewReferralQualifiedJob(referrals *referral.ReferralService, bonusPoints int64) *ReferralQualifiedJob {
	return &ReferralQualifiedJob{
		referrals:   referrals,
		bonusPoints: bonusPoints,
	}
}

// RegisterReferralQualifiedJobHandlers registers the referral qualified job handlers
func RegisterReferralQualifiedJobHandlers(p *queue.JobProcessor, referrals *referral.ReferralService, bonusPoints int64) {
	handler := NewReferralQualifiedJob(referrals, bonusPoints)
	p.RegisterHandler(queue.QueueReferralQualified, handler.Handle)
}

// EnqueueReferralQualified validates and enqueues a referral qualified job
func EnqueueReferralQualified(ctx context.Context, broker queue.Broker, payload ReferralQualifiedPayload, maxRetries int) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	id, err := broker.Enqueue(ctx, queue.QueueReferralQualified, payload, queue.WithMaxRetries(maxRetries))
	if err != nil {
		return "", apperrors.Transient(err, "failed to enqueue referral qualified event")
	}
	return id, nil
}

// Handle processes a referral qualified job. A referral that is already
// rewarded is acknowledged without paying twice.
func (j *ReferralQualifiedJob) Handle(ctx context.Context, job queue.Job) error {
	var payload ReferralQualifiedPayload
	if err := job.Decode(&payload); err != nil {
		return apperrors.Validation("failed to unmarshal referral qualified payload: %v", err)
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	ref, err := j.resolve(ctx, payload)
	if err != nil {
		return err
	}
	if payload.RefereeEmail != "" && utils.NormalizeEmail(payload.RefereeEmail) != ref.RefereeEmail {
		return apperrors.Validation("referee email does not match referral %s", ref.ID)
	}

	switch ref.Status {
	case models.ReferralRewarded:
		log.Printf("Referral %s already rewarded, skipping", ref.ID)
		return nil
	case models.ReferralPending:
		if _, err := j.referrals.MarkCompleted(ctx, ref.ID); err != nil && !errors.Is(err, apperrors.ErrInvalidTransition) {
			return fmt.Errorf("failed to complete referral: %w", err)
		}
	}

	rewarded, err := j.referrals.RewardReferral(ctx, ref.ID, j.bonusPoints)
	if errors.Is(err, apperrors.ErrAlreadyRewarded) {
		log.Printf("Referral %s already rewarded, skipping", ref.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reward referral: %w", err)
	}

	log.Printf("Successfully processed qualified referral %s", rewarded.ID)
	return nil
}

func (j *ReferralQualifiedJob) resolve(ctx context.Context, payload ReferralQualifiedPayload) (*models.Referral, error) {
	if payload.ReferralID != nil && *payload.ReferralID != uuid.Nil {
		return j.referrals.Get(ctx, *payload.ReferralID)
	}
	return j.referrals.FindByShareCode(ctx, payload.ShareCode)
}
