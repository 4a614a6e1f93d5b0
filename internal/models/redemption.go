package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/apperrors"
)

// Redemption records points exchanged for a reward. It is written in the same
// database transaction as its redeem ledger entry and never changes afterwards.
type Redemption struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID      uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_redemptions_account_idem,priority:1" json:"account_id"`
	RewardID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"reward_id"`
	RewardName     string         `gorm:"type:varchar(200);not null" json:"reward_name"`
	Category       RewardCategory `gorm:"type:varchar(30);not null" json:"category"`
	PointsSpent    int64          `gorm:"not null" json:"points_spent"`
	Code           string         `gorm:"type:varchar(40);not null;uniqueIndex" json:"code"`
	TransactionID  uuid.UUID      `gorm:"type:uuid;not null" json:"transaction_id"`
	IdempotencyKey *string        `gorm:"type:varchar(150);uniqueIndex:idx_redemptions_account_idem,priority:2" json:"-"`
	RedeemedAt     time.Time      `gorm:"not null" json:"redeemed_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// BeforeCreate assigns a UUID when the caller did not supply one
func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate refuses edits; reversals go through a refund entry
func (r *Redemption) BeforeUpdate(tx *gorm.DB) error {
	return apperrors.ErrImmutable
}

// BeforeDelete refuses deletes
func (r *Redemption) BeforeDelete(tx *gorm.DB) error {
	return apperrors.ErrImmutable
}
