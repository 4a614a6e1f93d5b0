package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the per-customer balance projection of the points ledger.
// The id is the customer's id in the identity system.
type Account struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AvailablePoints  int64     `gorm:"not null;default:0;check:chk_loyalty_accounts_available,available_points >= 0" json:"available_points"`
	LifetimePoints   int64     `gorm:"not null;default:0;check:chk_loyalty_accounts_lifetime,lifetime_points >= 0" json:"lifetime_points"`
	CurrentTier      string    `gorm:"type:varchar(50);not null" json:"current_tier"`
	TransactionCount int64     `gorm:"not null;default:0" json:"transaction_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName overrides the default table name
func (Account) TableName() string {
	return "loyalty_accounts"
}
