package catalog

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/tier"
)

// RewardInput is the reward state pushed by the catalog owner
type RewardInput struct {
	Category    models.RewardCategory `json:"category"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Value       float64               `json:"value"`
	PointsCost  int64                 `json:"points_cost"`
	MinTier     *string               `json:"min_tier"`
	Stock       *int64                `json:"stock"`
	ExpiryDays  *int                  `json:"expiry_days"`
	// Available keeps the stored value when omitted, new rewards default to true
	Available *bool `json:"available"`
}

// CatalogService mirrors the externally owned reward catalog
type CatalogService struct {
	db    *gorm.DB
	tiers *tier.Table
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB, tiers *tier.Table) *CatalogService {
	return &CatalogService{db: db, tiers: tiers}
}

func (s *CatalogService) validate(input *RewardInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return apperrors.Validation("reward name is required")
	}
	if !input.Category.Valid() {
		return apperrors.Validation("unknown reward category %q", string(input.Category))
	}
	if input.PointsCost <= 0 {
		return apperrors.Validation("points cost must be positive")
	}
	if input.Value < 0 {
		return apperrors.Validation("reward value cannot be negative")
	}
	if input.MinTier != nil {
		if *input.MinTier == "" {
			input.MinTier = nil
		} else if _, ok := s.tiers.Index(*input.MinTier); !ok {
			return apperrors.Validation("unknown tier %q", *input.MinTier)
		}
	}
	if input.Stock != nil && *input.Stock < 0 {
		return apperrors.Validation("stock cannot be negative")
	}
	if input.ExpiryDays != nil && *input.ExpiryDays <= 0 {
		return apperrors.Validation("expiry days must be positive")
	}
	return nil
}

// UpsertReward creates or replaces the reward with the given id
func (s *CatalogService) UpsertReward(ctx context.Context, rewardID uuid.UUID, input RewardInput) (*models.Reward, bool, error) {
	if rewardID == uuid.Nil {
		return nil, false, apperrors.Validation("reward id is required")
	}
	if err := s.validate(&input); err != nil {
		return nil, false, err
	}

	var reward models.Reward
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reward, "id = ?", rewardID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			reward = models.Reward{
				Base:        models.Base{ID: rewardID},
				Category:    input.Category,
				Name:        input.Name,
				Description: input.Description,
				Value:       input.Value,
				PointsCost:  input.PointsCost,
				MinTier:     input.MinTier,
				Stock:       input.Stock,
				ExpiryDays:  input.ExpiryDays,
				Available:   input.Available == nil || *input.Available,
			}
			if err := tx.Create(&reward).Error; err != nil {
				return apperrors.Transient(err, "error creating reward")
			}
			return nil
		}
		if err != nil {
			return apperrors.Transient(err, "error loading reward")
		}

		available := reward.Available
		if input.Available != nil {
			available = *input.Available
		}
		// map updates so nil pointers clear the column
		if err := tx.Model(&reward).Updates(map[string]interface{}{
			"category":    input.Category,
			"name":        input.Name,
			"description": input.Description,
			"value":       input.Value,
			"points_cost": input.PointsCost,
			"min_tier":    input.MinTier,
			"stock":       input.Stock,
			"expiry_days": input.ExpiryDays,
			"available":   available,
		}).Error; err != nil {
			return apperrors.Transient(err, "error updating reward")
		}
		return tx.First(&reward, "id = ?", rewardID).Error
	})
	if err != nil {
		return nil, false, err
	}

	log.Printf("Catalog reward %s upserted (created=%t, available=%t)", reward.ID, created, reward.Available)
	return &reward, created, nil
}

// GetReward returns a reward by id
func (s *CatalogService) GetReward(ctx context.Context, rewardID uuid.UUID) (*models.Reward, error) {
	var reward models.Reward
	err := s.db.WithContext(ctx).First(&reward, "id = ?", rewardID).Error
	if err == nil {
		return &reward, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrRewardNotFound
	}
	return nil, apperrors.Transient(err, "error finding reward")
}

// ListRewards returns the whole catalog ordered by cost
func (s *CatalogService) ListRewards(ctx context.Context, includeUnavailable bool) ([]models.Reward, error) {
	query := s.db.WithContext(ctx).Order("points_cost ASC, name ASC")
	if !includeUnavailable {
		query = query.Where("available = ?", true)
	}
	var rewards []models.Reward
	if err := query.Find(&rewards).Error; err != nil {
		return nil, apperrors.Transient(err, "error listing rewards")
	}
	return rewards, nil
}
