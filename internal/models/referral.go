package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferralStatus is the lifecycle state of a referral
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
	ReferralRewarded  ReferralStatus = "rewarded"
)

// CanTransitionTo reports whether next is the single allowed successor of s
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	switch s {
	case ReferralPending:
		return next == ReferralCompleted
	case ReferralCompleted:
		return next == ReferralRewarded
	default:
		return false
	}
}

// Referral tracks an invited prospect from invite to bonus payout
type Referral struct {
	Base
	ReferrerAccountID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_referrals_referrer_email,priority:1" json:"referrer_account_id"`
	RefereeEmail      string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_referrals_referrer_email,priority:2" json:"referee_email"`
	RefereeName       string         `gorm:"type:varchar(200)" json:"referee_name"`
	ShareCode         string         `gorm:"type:varchar(80);not null;uniqueIndex" json:"share_code"`
	Status            ReferralStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PointsEarned      int64          `gorm:"not null;default:0" json:"points_earned"`
	TransactionID     *uuid.UUID     `gorm:"type:uuid" json:"transaction_id,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	RewardedAt        *time.Time     `json:"rewarded_at,omitempty"`
}
