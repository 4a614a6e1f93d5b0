package models

import (
	"github.com/revaspay/loyalty/internal/apperrors"
)

// RewardCategory is the closed set of reward kinds the catalog may offer
type RewardCategory string

const (
	CategoryDiscount     RewardCategory = "discount"
	CategoryFreeShipping RewardCategory = "free_shipping"
	CategoryGiftCard     RewardCategory = "gift_card"
	CategoryProduct      RewardCategory = "product"
	CategoryExclusive    RewardCategory = "exclusive"
)

// RewardCategories lists every category in display order
var RewardCategories = []RewardCategory{
	CategoryDiscount,
	CategoryFreeShipping,
	CategoryGiftCard,
	CategoryProduct,
	CategoryExclusive,
}

// CodePrefix returns the prefix printed on redemption codes for the category.
// Unknown categories are a catalog programming error.
func (c RewardCategory) CodePrefix() (string, error) {
	switch c {
	case CategoryDiscount:
		return "DISC", nil
	case CategoryFreeShipping:
		return "SHIP", nil
	case CategoryGiftCard:
		return "GIFT", nil
	case CategoryProduct:
		return "PROD", nil
	case CategoryExclusive:
		return "EXCL", nil
	default:
		return "", apperrors.Wrap(apperrors.ErrUnknownCategory, "unknown reward category %q", string(c))
	}
}

// Valid reports whether c is one of the known categories
func (c RewardCategory) Valid() bool {
	_, err := c.CodePrefix()
	return err == nil
}

// Reward is a catalog item that can be bought with points.
// The catalog service owns these rows; the engine only writes Stock and
// Available, and only in the same transaction as a ledger debit.
type Reward struct {
	Base
	Category    RewardCategory `gorm:"type:varchar(30);not null" json:"category"`
	Name        string         `gorm:"type:varchar(200);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Value       float64        `gorm:"type:decimal(20,2);default:0" json:"value"`
	PointsCost  int64          `gorm:"not null;check:chk_rewards_points_cost,points_cost > 0" json:"points_cost"`
	MinTier     *string        `gorm:"type:varchar(50)" json:"min_tier,omitempty"`
	Stock       *int64         `gorm:"check:chk_rewards_stock,stock >= 0" json:"stock,omitempty"`
	ExpiryDays  *int           `json:"expiry_days,omitempty"`
	Available   bool           `gorm:"not null" json:"available"`
}

// InStock reports whether at least one unit can be handed out
func (r *Reward) InStock() bool {
	return r.Stock == nil || *r.Stock > 0
}

// Redeemable reports whether the reward is enabled and in stock
func (r *Reward) Redeemable() bool {
	return r.Available && r.InStock()
}
