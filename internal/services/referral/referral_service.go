package referral

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/metrics"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/utils"
)

const (
	maxShareCodeAttempts = 5
	shareSuffixLength    = 6
	maxSlugLength        = 40
	defaultSlug          = "friend"
)

// ReferralService tracks referrals from invite to bonus payout
type ReferralService struct {
	db     *gorm.DB
	ledger *ledger.LedgerService
	// shareCode is swapped in tests to force collisions
	shareCode func(name string) (string, error)
}

// NewReferralService creates a new referral service
func NewReferralService(db *gorm.DB, ledgerService *ledger.LedgerService) *ReferralService {
	return &ReferralService{
		db:        db,
		ledger:    ledgerService,
		shareCode: newShareCode,
	}
}

// newShareCode builds a share code from the referee name plus a random suffix
func newShareCode(name string) (string, error) {
	base := slug.Make(name)
	if len(base) > maxSlugLength {
		base = strings.Trim(base[:maxSlugLength], "-")
	}
	if base == "" {
		base = defaultSlug
	}
	suffix, err := utils.GenerateCode(shareSuffixLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", base, strings.ToLower(suffix)), nil
}

// CreateReferral records a pending referral of email by referrerID
func (s *ReferralService) CreateReferral(ctx context.Context, referrerID uuid.UUID, email, name string) (*models.Referral, error) {
	if referrerID == uuid.Nil {
		return nil, apperrors.Validation("referrer account id is required")
	}
	email = utils.NormalizeEmail(email)
	if !utils.IsValidEmail(email) {
		return nil, apperrors.Validation("invalid referee email %q", email)
	}
	name = strings.TrimSpace(name)
	if len(name) > 200 {
		return nil, apperrors.Validation("referee name is too long")
	}

	var referral models.Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Referral{}).
			Where("referrer_account_id = ? AND referee_email = ?", referrerID, email).
			Count(&count).Error; err != nil {
			return apperrors.Transient(err, "error checking existing referral")
		}
		if count > 0 {
			return apperrors.Wrap(apperrors.ErrDuplicateReferral, "%s has already been referred by this account", email)
		}

		code, err := s.uniqueShareCode(tx, name)
		if err != nil {
			return err
		}

		referral = models.Referral{
			ReferrerAccountID: referrerID,
			RefereeEmail:      email,
			RefereeName:       name,
			ShareCode:         code,
			Status:            models.ReferralPending,
		}
		if err := tx.Create(&referral).Error; err != nil {
			return &insertError{err: err}
		}
		return nil
	})
	var insertErr *insertError
	if errors.As(err, &insertErr) {
		return nil, s.insertFailure(ctx, referrerID, email, insertErr.err)
	}
	if err != nil {
		return nil, err
	}

	metrics.ReferralTransitions.WithLabelValues(string(models.ReferralPending)).Inc()
	log.Printf("Account %s referred %s (share code %s)", referrerID, email, referral.ShareCode)
	return &referral, nil
}

// insertError marks a failed referral insert so it can be classified after rollback
type insertError struct {
	err error
}

func (e *insertError) Error() string { return e.err.Error() }

func (e *insertError) Unwrap() error { return e.err }

// insertFailure classifies a failed insert. A concurrent request that created the
// same (referrer, email) pair first trips the unique index, which is a duplicate,
// not a storage fault. The check runs outside the aborted transaction.
func (s *ReferralService) insertFailure(ctx context.Context, referrerID uuid.UUID, email string, cause error) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_account_id = ? AND referee_email = ?", referrerID, email).
		Count(&count).Error; err == nil && count > 0 {
		return apperrors.Wrap(apperrors.ErrDuplicateReferral, "%s has already been referred by this account", email)
	}
	return apperrors.Transient(cause, "error creating referral")
}

func (s *ReferralService) uniqueShareCode(tx *gorm.DB, name string) (string, error) {
	for attempt := 0; attempt < maxShareCodeAttempts; attempt++ {
		code, err := s.shareCode(name)
		if err != nil {
			return "", apperrors.Transient(err, "error generating share code")
		}
		var count int64
		if err := tx.Model(&models.Referral{}).Where("share_code = ?", code).Count(&count).Error; err != nil {
			return "", apperrors.Transient(err, "error checking share code")
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", apperrors.Wrap(apperrors.ErrCodeSpace, "no unused share code after %d attempts", maxShareCodeAttempts)
}

// MarkCompleted moves a pending referral to completed
func (s *ReferralService) MarkCompleted(ctx context.Context, referralID uuid.UUID) (*models.Referral, error) {
	var referral *models.Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		referral, err = lockReferral(tx, referralID)
		if err != nil {
			return err
		}
		if !referral.Status.CanTransitionTo(models.ReferralCompleted) {
			return apperrors.Wrap(apperrors.ErrInvalidTransition, "referral %s is %s, cannot complete", referral.ID, referral.Status)
		}

		now := s.ledger.Now()
		if err := tx.Model(referral).Updates(map[string]interface{}{
			"status":       models.ReferralCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return apperrors.Transient(err, "error completing referral")
		}
		referral.Status = models.ReferralCompleted
		referral.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReferralTransitions.WithLabelValues(string(models.ReferralCompleted)).Inc()
	log.Printf("Referral %s completed", referral.ID)
	return referral, nil
}

// RewardReferral credits the referrer with bonusPoints and marks the referral
// rewarded. The bonus and the status change commit together.
func (s *ReferralService) RewardReferral(ctx context.Context, referralID uuid.UUID, bonusPoints int64) (*models.Referral, error) {
	if bonusPoints <= 0 {
		return nil, apperrors.Validation("referral bonus must be positive, got %d", bonusPoints)
	}

	var referral *models.Referral
	var result *ledger.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		referral, err = lockReferral(tx, referralID)
		if err != nil {
			return err
		}
		switch referral.Status {
		case models.ReferralRewarded:
			return apperrors.Wrap(apperrors.ErrAlreadyRewarded, "referral %s was already rewarded", referral.ID)
		case models.ReferralCompleted:
		default:
			return apperrors.Wrap(apperrors.ErrInvalidTransition, "referral %s is %s, cannot reward", referral.ID, referral.Status)
		}

		result, err = s.ledger.RecordWithTx(tx, ledger.Entry{
			AccountID:      referral.ReferrerAccountID,
			Type:           models.TransactionBonus,
			Points:         bonusPoints,
			Description:    "Referral bonus for " + referral.RefereeEmail,
			Reference:      referral.ID.String(),
			IdempotencyKey: "referral:" + referral.ID.String(),
			MetaData: map[string]interface{}{
				"referral_id": referral.ID.String(),
				"share_code":  referral.ShareCode,
			},
		})
		if err != nil {
			return err
		}

		now := s.ledger.Now()
		txID := result.Transaction.ID
		if err := tx.Model(referral).Updates(map[string]interface{}{
			"status":         models.ReferralRewarded,
			"points_earned":  result.Transaction.Points,
			"transaction_id": txID,
			"rewarded_at":    now,
			"updated_at":     now,
		}).Error; err != nil {
			return apperrors.Transient(err, "error marking referral rewarded")
		}
		referral.Status = models.ReferralRewarded
		referral.PointsEarned = result.Transaction.Points
		referral.TransactionID = &txID
		referral.RewardedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, result)
	metrics.ReferralTransitions.WithLabelValues(string(models.ReferralRewarded)).Inc()
	log.Printf("Referral %s rewarded: %d points to account %s", referral.ID, referral.PointsEarned, referral.ReferrerAccountID)
	return referral, nil
}

func lockReferral(tx *gorm.DB, referralID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&referral, "id = ?", referralID).Error
	if err == nil {
		return &referral, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrReferralNotFound
	}
	return nil, apperrors.Transient(err, "error loading referral")
}

// Get returns a referral by id
func (s *ReferralService) Get(ctx context.Context, referralID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	err := s.db.WithContext(ctx).First(&referral, "id = ?", referralID).Error
	if err == nil {
		return &referral, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrReferralNotFound
	}
	return nil, apperrors.Transient(err, "error finding referral")
}

// FindByShareCode returns the referral carrying code
func (s *ReferralService) FindByShareCode(ctx context.Context, code string) (*models.Referral, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.Validation("share code is required")
	}
	var referral models.Referral
	err := s.db.WithContext(ctx).First(&referral, "share_code = ?", code).Error
	if err == nil {
		return &referral, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrReferralNotFound
	}
	return nil, apperrors.Transient(err, "error finding referral by share code")
}

// ListByReferrer returns the referrals made by an account, newest first
func (s *ReferralService) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.Referral, error) {
	var referrals []models.Referral
	if err := s.db.WithContext(ctx).
		Where("referrer_account_id = ?", referrerID).
		Order("created_at DESC").
		Find(&referrals).Error; err != nil {
		return nil, apperrors.Transient(err, "error listing referrals")
	}
	return referrals, nil
}
