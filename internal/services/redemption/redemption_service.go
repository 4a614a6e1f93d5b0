package redemption

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/metrics"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/services/tier"
	"github.com/revaspay/loyalty/internal/utils"
)

const (
	// maxStockAttempts bounds the re-read loop when a concurrent redemption takes the last unit
	maxStockAttempts = 3
	// maxCodeAttempts bounds code generation retries on collision
	maxCodeAttempts = 5
	codeLength      = 8
	// ledgerKeyPrefix namespaces client keys among the account's ledger keys
	ledgerKeyPrefix = "redemption:"
)

// MaxIdempotencyKeyLength is the longest client key a redemption accepts
const MaxIdempotencyKeyLength = ledger.MaxIdempotencyKeyLength - len(ledgerKeyPrefix)

// errStockConflict means the conditional stock decrement matched no row
var errStockConflict = errors.New("reward stock changed")

// Outcome is the result of a redemption request
type Outcome struct {
	Redemption  *models.Redemption  `json:"redemption"`
	Transaction *models.Transaction `json:"transaction"`
	Replayed    bool                `json:"replayed"`
}

// RedemptionService exchanges points for catalog rewards
type RedemptionService struct {
	db     *gorm.DB
	ledger *ledger.LedgerService
	// generateCode is swapped in tests to force collisions
	generateCode func(prefix string) (string, error)
}

// NewRedemptionService creates a new redemption service
func NewRedemptionService(db *gorm.DB, ledgerService *ledger.LedgerService) *RedemptionService {
	return &RedemptionService{
		db:           db,
		ledger:       ledgerService,
		generateCode: newCode,
	}
}

func newCode(prefix string) (string, error) {
	body, err := utils.GenerateCode(codeLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, body[:4], body[4:]), nil
}

// Eligible reports whether an account at accountTier may redeem reward.
// A min tier missing from the table is a catalog error, not an ineligibility.
func Eligible(tiers *tier.Table, accountTier string, reward *models.Reward) (bool, error) {
	if reward.MinTier == nil || *reward.MinTier == "" {
		return true, nil
	}
	required, ok := tiers.Index(*reward.MinTier)
	if !ok {
		return false, apperrors.Wrap(apperrors.ErrUnknownTier, "reward %s requires unknown tier %q", reward.ID, *reward.MinTier)
	}
	current, ok := tiers.Index(accountTier)
	if !ok {
		return false, apperrors.Wrap(apperrors.ErrUnknownTier, "account tier %q is not in the tier table", accountTier)
	}
	return current >= required, nil
}

// Redeem spends the reward's cost from the account and issues a redemption code.
// Stock decrement, ledger debit and the redemption row commit together or not at all.
// Repeating a request with the same idempotency key returns the original redemption.
func (s *RedemptionService) Redeem(ctx context.Context, accountID, rewardID uuid.UUID, idempotencyKey string) (*Outcome, error) {
	if accountID == uuid.Nil || rewardID == uuid.Nil {
		return nil, apperrors.Validation("account id and reward id are required")
	}
	if len(idempotencyKey) > MaxIdempotencyKeyLength {
		return nil, apperrors.Validation("idempotency key longer than %d characters", MaxIdempotencyKeyLength)
	}

	var outcome *Outcome
	var result *ledger.Result
	var err error
	for attempt := 1; attempt <= maxStockAttempts; attempt++ {
		outcome, result, err = s.redeemOnce(ctx, accountID, rewardID, idempotencyKey)
		if !errors.Is(err, errStockConflict) {
			break
		}
		log.Printf("Stock conflict redeeming reward %s for account %s (attempt %d)", rewardID, accountID, attempt)
	}
	if errors.Is(err, errStockConflict) {
		err = apperrors.Wrap(apperrors.ErrRewardUnavailable, "reward %s is out of stock", rewardID)
	}

	if err != nil {
		metrics.Redemptions.WithLabelValues(apperrors.CodeOf(err)).Inc()
		if apperrors.KindOf(err) == apperrors.KindFatal {
			log.Printf("ALERT: redemption of reward %s failed: %v", rewardID, err)
		}
		return nil, err
	}

	if outcome.Replayed {
		metrics.Redemptions.WithLabelValues("replayed").Inc()
		return outcome, nil
	}
	metrics.Redemptions.WithLabelValues("success").Inc()
	s.ledger.Committed(ctx, result)
	log.Printf("Account %s redeemed reward %s for %d points (code %s)",
		accountID, rewardID, outcome.Redemption.PointsSpent, outcome.Redemption.Code)
	return outcome, nil
}

func (s *RedemptionService) redeemOnce(ctx context.Context, accountID, rewardID uuid.UUID, idempotencyKey string) (*Outcome, *ledger.Result, error) {
	var outcome *Outcome
	var result *ledger.Result

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.ledger.LockAccount(tx, accountID)
		if err != nil {
			return err
		}

		if idempotencyKey != "" {
			existing, err := s.findByKey(tx, accountID, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				var debit models.Transaction
				if err := tx.First(&debit, "id = ?", existing.TransactionID).Error; err != nil {
					return apperrors.Transient(err, "error loading redemption debit")
				}
				outcome = &Outcome{Redemption: existing, Transaction: &debit, Replayed: true}
				return nil
			}
		}

		var reward models.Reward
		if err := tx.First(&reward, "id = ?", rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrRewardNotFound
			}
			return apperrors.Transient(err, "error finding reward")
		}

		prefix, err := reward.Category.CodePrefix()
		if err != nil {
			return err
		}
		if !reward.Redeemable() {
			return apperrors.Wrap(apperrors.ErrRewardUnavailable, "reward %s is not available", reward.ID)
		}
		accountTier := s.ledger.Tiers().Resolve(account.LifetimePoints).Level
		eligible, err := Eligible(s.ledger.Tiers(), accountTier, &reward)
		if err != nil {
			return err
		}
		if !eligible {
			return apperrors.Wrap(apperrors.ErrTierIneligible, "reward requires %s tier, account is %s", *reward.MinTier, accountTier)
		}
		if account.AvailablePoints < reward.PointsCost {
			return apperrors.Wrap(apperrors.ErrInsufficientPoints,
				"insufficient points: %d required, %d available", reward.PointsCost, account.AvailablePoints)
		}

		now := s.ledger.Now()
		if reward.Stock != nil {
			update := tx.Model(&models.Reward{}).
				Where("id = ? AND stock > 0 AND available = ?", reward.ID, true).
				Updates(map[string]interface{}{
					"stock":      gorm.Expr("stock - 1"),
					"available":  gorm.Expr("CASE WHEN stock <= 1 THEN ? ELSE available END", false),
					"updated_at": now,
				})
			if update.Error != nil {
				return apperrors.Transient(update.Error, "error reserving reward stock")
			}
			if update.RowsAffected == 0 {
				return errStockConflict
			}
		}

		var ledgerKey string
		if idempotencyKey != "" {
			ledgerKey = ledgerKeyPrefix + idempotencyKey
		}
		result, err = s.ledger.RecordWithTx(tx, ledger.Entry{
			AccountID:      accountID,
			Type:           models.TransactionRedeem,
			Points:         -reward.PointsCost,
			Description:    "Redeemed " + reward.Name,
			Reference:      reward.ID.String(),
			IdempotencyKey: ledgerKey,
			MetaData: map[string]interface{}{
				"reward_id": reward.ID.String(),
				"category":  string(reward.Category),
			},
		})
		if err != nil {
			return err
		}

		code, err := s.uniqueCode(tx, prefix)
		if err != nil {
			return err
		}

		redemption := models.Redemption{
			AccountID:     accountID,
			RewardID:      reward.ID,
			RewardName:    reward.Name,
			Category:      reward.Category,
			PointsSpent:   reward.PointsCost,
			Code:          code,
			TransactionID: result.Transaction.ID,
			RedeemedAt:    now,
		}
		if idempotencyKey != "" {
			key := idempotencyKey
			redemption.IdempotencyKey = &key
		}
		if reward.ExpiryDays != nil && *reward.ExpiryDays > 0 {
			expiresAt := now.AddDate(0, 0, *reward.ExpiryDays)
			redemption.ExpiresAt = &expiresAt
		}
		if err := tx.Create(&redemption).Error; err != nil {
			return apperrors.Transient(err, "error creating redemption")
		}

		outcome = &Outcome{Redemption: &redemption, Transaction: result.Transaction}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, result, nil
}

// uniqueCode generates codes until one is unused. The unique index on code
// still rejects a collision with a concurrent redemption.
func (s *RedemptionService) uniqueCode(tx *gorm.DB, prefix string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generateCode(prefix)
		if err != nil {
			return "", apperrors.Transient(err, "error generating redemption code")
		}
		var count int64
		if err := tx.Model(&models.Redemption{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", apperrors.Transient(err, "error checking redemption code")
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", apperrors.Wrap(apperrors.ErrCodeSpace, "no unused %s code after %d attempts", prefix, maxCodeAttempts)
}

func (s *RedemptionService) findByKey(tx *gorm.DB, accountID uuid.UUID, key string) (*models.Redemption, error) {
	var existing models.Redemption
	err := tx.Where("account_id = ? AND idempotency_key = ?", accountID, key).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, apperrors.Transient(err, "error checking redemption idempotency key")
}

// AvailableRewards lists rewards the account may redeem right now, ignoring affordability
func (s *RedemptionService) AvailableRewards(ctx context.Context, accountID uuid.UUID) ([]models.Reward, error) {
	summary, err := s.ledger.GetAccountSummary(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var rewards []models.Reward
	if err := s.db.WithContext(ctx).Where("available = ?", true).Order("points_cost ASC, name ASC").Find(&rewards).Error; err != nil {
		return nil, apperrors.Transient(err, "error listing rewards")
	}

	eligible := make([]models.Reward, 0, len(rewards))
	for i := range rewards {
		reward := &rewards[i]
		if !reward.Redeemable() || !reward.Category.Valid() {
			continue
		}
		ok, err := Eligible(s.ledger.Tiers(), summary.CurrentTier.Level, reward)
		if err != nil {
			log.Printf("ALERT: hiding reward %s: %v", reward.ID, err)
			continue
		}
		if ok {
			eligible = append(eligible, *reward)
		}
	}
	return eligible, nil
}

// ListRedemptions returns an account's redemptions, newest first
func (s *RedemptionService) ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.Redemption, error) {
	var redemptions []models.Redemption
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("redeemed_at DESC").Find(&redemptions).Error; err != nil {
		return nil, apperrors.Transient(err, "error listing redemptions")
	}
	return redemptions, nil
}

// GetRedemption returns a redemption by id
func (s *RedemptionService) GetRedemption(ctx context.Context, redemptionID uuid.UUID) (*models.Redemption, error) {
	var redemption models.Redemption
	err := s.db.WithContext(ctx).First(&redemption, "id = ?", redemptionID).Error
	if err == nil {
		return &redemption, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrRedemptionNotFound
	}
	return nil, apperrors.Transient(err, "error finding redemption")
}

// Reverse refunds a redemption with a compensating transaction and returns
// its unit to finite stock. A reward that sold out reopens with the returned unit.
// The redemption and its debit are left untouched.
func (s *RedemptionService) Reverse(ctx context.Context, redemptionID uuid.UUID, reason string) (*models.Transaction, error) {
	redemption, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	key := "reversal:" + redemption.ID.String()

	var result *ledger.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockAccount(tx, redemption.AccountID); err != nil {
			return err
		}
		existing, err := s.ledger.FindByIdempotencyKey(tx, redemption.AccountID, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.Wrap(apperrors.ErrAlreadyReversed, "redemption %s was reversed at %s", redemption.ID, existing.CreatedAt.Format(time.RFC3339))
		}

		description := "Reversed " + redemption.RewardName
		if reason != "" {
			description += ": " + reason
		}
		result, err = s.ledger.RecordWithTx(tx, ledger.Entry{
			AccountID:      redemption.AccountID,
			Type:           models.TransactionRefund,
			Points:         redemption.PointsSpent,
			Description:    description,
			Reference:      redemption.ID.String(),
			IdempotencyKey: key,
			MetaData: map[string]interface{}{
				"redemption_id":  redemption.ID.String(),
				"transaction_id": redemption.TransactionID.String(),
				"reason":         reason,
			},
		})
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Reward{}).
			Where("id = ? AND stock IS NOT NULL", redemption.RewardID).
			Updates(map[string]interface{}{
				"stock":      gorm.Expr("stock + 1"),
				"available":  gorm.Expr("CASE WHEN stock = 0 THEN ? ELSE available END", true),
				"updated_at": s.ledger.Now(),
			}).Error; err != nil {
			return apperrors.Transient(err, "error returning reward stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, result)
	metrics.Redemptions.WithLabelValues("reversed").Inc()
	log.Printf("Reversed redemption %s for account %s (%d points)", redemption.ID, redemption.AccountID, redemption.PointsSpent)
	return result.Transaction, nil
}
