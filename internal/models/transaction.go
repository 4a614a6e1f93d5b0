package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/apperrors"
)

// TransactionType enumerates ledger entry kinds
type TransactionType string

const (
	TransactionEarn   TransactionType = "earn"
	TransactionBonus  TransactionType = "bonus"
	TransactionRedeem TransactionType = "redeem"
	TransactionExpire TransactionType = "expire"
	// TransactionRefund compensates a reversed redemption. It restores available
	// points without counting toward lifetime points.
	TransactionRefund TransactionType = "refund"
)

// Valid reports whether t is a known type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionEarn, TransactionBonus, TransactionRedeem, TransactionExpire, TransactionRefund:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type carry a positive delta
func (t TransactionType) IsCredit() bool {
	return t == TransactionEarn || t == TransactionBonus || t == TransactionRefund
}

// CountsTowardLifetime reports whether the delta is added to lifetime points
func (t TransactionType) CountsTowardLifetime() bool {
	return t == TransactionEarn || t == TransactionBonus
}

// Transaction is one immutable entry of the points ledger
type Transaction struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_point_txn_account_seq,priority:1;uniqueIndex:idx_point_txn_account_idem,priority:1" json:"account_id"`
	Sequence       int64           `gorm:"not null;uniqueIndex:idx_point_txn_account_seq,priority:2" json:"sequence"`
	Type           TransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Points         int64           `gorm:"not null" json:"points"`
	BalanceAfter   int64           `gorm:"not null" json:"balance_after"`
	LifetimeAfter  int64           `gorm:"not null" json:"lifetime_after"`
	Description    string          `gorm:"type:text" json:"description"`
	Reference      string          `gorm:"type:varchar(100);index" json:"reference,omitempty"`
	IdempotencyKey *string         `gorm:"type:varchar(150);uniqueIndex:idx_point_txn_account_idem,priority:2" json:"-"`
	ExpiresAt      *time.Time      `gorm:"index" json:"expires_at,omitempty"`
	MetaData       JSON            `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName overrides the default table name
func (Transaction) TableName() string {
	return "point_transactions"
}

// BeforeCreate assigns a UUID when the caller did not supply one
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate refuses edits; corrections are made with compensating entries
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return apperrors.ErrImmutable
}

// BeforeDelete refuses deletes
func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return apperrors.ErrImmutable
}
