package earning

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/ledger"
)

// Event is a business event that may earn points
type Event struct {
	AccountID uuid.UUID
	Action    models.EarningAction
	// Amount is the currency amount for rate rules; flat rules ignore it
	Amount    float64
	Reference string
	// IdempotencyKey defaults to "<action>:<reference>" when a reference is given
	IdempotencyKey string
	Description    string
}

// AccrualResult reports what an event earned
type AccrualResult struct {
	Points      int64               `json:"points"`
	Tier        string              `json:"tier"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Replayed    bool                `json:"replayed"`
}

// Service applies earning rules to events and records the result in the ledger
type Service struct {
	db     *gorm.DB
	ledger *ledger.LedgerService
	rules  *RuleTable
}

// NewService creates a new earning service
func NewService(db *gorm.DB, ledgerService *ledger.LedgerService, rules *RuleTable) *Service {
	return &Service{
		db:     db,
		ledger: ledgerService,
		rules:  rules,
	}
}

// Rules returns the earning rule table
func (s *Service) Rules() *RuleTable {
	return s.rules
}

// Accrue evaluates event against the account's current tier and records an earn
// transaction. The tier is read under the account lock so concurrent accruals
// cannot both use a stale multiplier. Events worth zero points record nothing.
func (s *Service) Accrue(ctx context.Context, event Event) (*AccrualResult, error) {
	if event.AccountID == uuid.Nil {
		return nil, apperrors.Validation("account id is required")
	}
	rule, err := s.rules.Lookup(event.Action)
	if err != nil {
		return nil, err
	}

	key := event.IdempotencyKey
	if key == "" && event.Reference != "" {
		key = fmt.Sprintf("%s:%s", event.Action, event.Reference)
	}
	description := event.Description
	if description == "" {
		description = rule.Description
	}

	var result *ledger.Result
	accrual := &AccrualResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.ledger.LockAccount(tx, event.AccountID)
		if err != nil {
			return err
		}

		existing, err := s.ledger.FindByIdempotencyKey(tx, event.AccountID, key)
		if err != nil {
			return err
		}
		if existing != nil {
			accrual.Points = existing.Points
			accrual.Tier = account.CurrentTier
			accrual.Transaction = existing
			accrual.Replayed = true
			return nil
		}

		current := s.ledger.Tiers().Resolve(account.LifetimePoints)
		points, err := ComputePoints(rule, event.Amount, current)
		if err != nil {
			return err
		}
		accrual.Tier = current.Level
		if points == 0 {
			return nil
		}

		result, err = s.ledger.RecordWithTx(tx, ledger.Entry{
			AccountID:      event.AccountID,
			Type:           models.TransactionEarn,
			Points:         points,
			Description:    description,
			Reference:      event.Reference,
			IdempotencyKey: key,
			MetaData: map[string]interface{}{
				"action":     string(event.Action),
				"rule_id":    rule.ID,
				"amount":     event.Amount,
				"tier":       current.Level,
				"multiplier": current.Multiplier,
			},
		})
		if err != nil {
			return err
		}
		accrual.Points = points
		accrual.Transaction = result.Transaction
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, result)
	if result != nil {
		log.Printf("Account %s earned %d points for %s %s", event.AccountID, accrual.Points, event.Action, event.Reference)
	}
	return accrual, nil
}
