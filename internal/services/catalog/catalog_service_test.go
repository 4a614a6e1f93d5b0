package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/testutil"
)

func newTestService(t *testing.T) *CatalogService {
	return NewCatalogService(testutil.NewTestDB(t), testutil.StandardTable(t))
}

func boolPtr(v bool) *bool { return &v }

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }

func TestUpsertRewardCreatesThenReplaces(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	reward, created, err := svc.UpsertReward(ctx, id, RewardInput{
		Category:   models.CategoryGiftCard,
		Name:       "  GHS 50 gift card ",
		Value:      50,
		PointsCost: 5000,
		MinTier:    stringPtr("Silver"),
		Stock:      int64Ptr(10),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, reward.ID)
	assert.Equal(t, "GHS 50 gift card", reward.Name)
	assert.True(t, reward.Available)

	reward, created, err = svc.UpsertReward(ctx, id, RewardInput{
		Category:   models.CategoryGiftCard,
		Name:       "GHS 50 gift card",
		PointsCost: 4500,
		Available:  boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(4500), reward.PointsCost)
	assert.False(t, reward.Available)
	assert.Nil(t, reward.MinTier)
	assert.Nil(t, reward.Stock)

	// omitting available keeps the stored value
	reward, _, err = svc.UpsertReward(ctx, id, RewardInput{
		Category: models.CategoryGiftCard, Name: "GHS 50 gift card", PointsCost: 4500,
	})
	require.NoError(t, err)
	assert.False(t, reward.Available)

	stored, err := svc.GetReward(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), stored.PointsCost)
}

func TestUpsertRewardValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	valid := RewardInput{Category: models.CategoryDiscount, Name: "10% off", PointsCost: 500}
	negativeDays := -1

	tests := []struct {
		name   string
		mutate func(in *RewardInput)
	}{
		{"missing name", func(in *RewardInput) { in.Name = " " }},
		{"unknown category", func(in *RewardInput) { in.Category = "voucher" }},
		{"zero cost", func(in *RewardInput) { in.PointsCost = 0 }},
		{"negative value", func(in *RewardInput) { in.Value = -1 }},
		{"unknown tier", func(in *RewardInput) { in.MinTier = stringPtr("Diamond") }},
		{"negative stock", func(in *RewardInput) { in.Stock = int64Ptr(-1) }},
		{"negative expiry", func(in *RewardInput) { in.ExpiryDays = &negativeDays }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, _, err := svc.UpsertReward(ctx, uuid.New(), in)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}

	_, _, err := svc.UpsertReward(ctx, uuid.Nil, valid)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestListRewards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.UpsertReward(ctx, uuid.New(), RewardInput{Category: models.CategoryProduct, Name: "Mug", PointsCost: 900})
	require.NoError(t, err)
	_, _, err = svc.UpsertReward(ctx, uuid.New(), RewardInput{Category: models.CategoryFreeShipping, Name: "Free delivery", PointsCost: 300})
	require.NoError(t, err)
	_, _, err = svc.UpsertReward(ctx, uuid.New(), RewardInput{Category: models.CategoryExclusive, Name: "Launch event", PointsCost: 100, Available: boolPtr(false)})
	require.NoError(t, err)

	rewards, err := svc.ListRewards(ctx, false)
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "Free delivery", rewards[0].Name)
	assert.Equal(t, "Mug", rewards[1].Name)

	all, err := svc.ListRewards(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.GetReward(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrRewardNotFound))
}
