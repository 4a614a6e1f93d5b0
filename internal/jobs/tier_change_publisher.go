package jobs

import (
	"context"
	"log"

	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/ledger"
)

// QueueTierChanges carries tier change notifications to downstream consumers
const QueueTierChanges = "loyalty_tier_changes"

// TierChangePayload is published whenever an account crosses a tier boundary
type TierChangePayload struct {
	AccountID      string `json:"account_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Upgrade        bool   `json:"upgrade"`
	LifetimePoints int64  `json:"lifetime_points"`
}

// TierChangePublisher forwards committed tier changes to the broker
type TierChangePublisher struct {
	broker queue.Broker
}

// NewTierChangePublisher creates a new tier change publisher
func NewTierChangePublisher(broker queue.Broker) *TierChangePublisher {
	return &TierChangePublisher{broker: broker}
}

// TierChanged publishes change. The ledger entry is already committed, so a
// publish failure is logged and dropped.
func (p *TierChangePublisher) TierChanged(ctx context.Context, change ledger.TierChange) {
	payload := TierChangePayload{
		AccountID:      change.AccountID.String(),
		From:           change.From,
		To:             change.To,
		Upgrade:        change.Upgrade,
		LifetimePoints: change.LifetimePoints,
	}
	if _, err := p.broker.Enqueue(ctx, QueueTierChanges, payload); err != nil {
		log.Printf("Error publishing tier change for account %s: %v", change.AccountID, err)
	}
}
