package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralStatusTransitions(t *testing.T) {
	statuses := []ReferralStatus{ReferralPending, ReferralCompleted, ReferralRewarded}
	allowed := map[[2]ReferralStatus]bool{
		{ReferralPending, ReferralCompleted}:  true,
		{ReferralCompleted, ReferralRewarded}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]ReferralStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestRewardCategoryPrefixes(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range RewardCategories {
		prefix, err := c.CodePrefix()
		require.NoError(t, err)
		assert.False(t, seen[prefix], "duplicate prefix %s", prefix)
		seen[prefix] = true
		assert.True(t, c.Valid())
	}

	_, err := RewardCategory("voucher").CodePrefix()
	assert.Error(t, err)
	assert.False(t, RewardCategory("").Valid())
}

func TestTierContainsIsHalfOpen(t *testing.T) {
	bronzeMax := int64(5000)
	bronze := Tier{Level: "Bronze", MinPoints: 0, MaxPoints: &bronzeMax}
	top := Tier{Level: "Platinum", MinPoints: 30000}

	assert.True(t, bronze.Contains(0))
	assert.True(t, bronze.Contains(4999))
	assert.False(t, bronze.Contains(5000))
	assert.True(t, top.Contains(1<<40))
	assert.False(t, top.Contains(29999))
}

func TestTransactionTypeSigns(t *testing.T) {
	assert.True(t, TransactionEarn.IsCredit())
	assert.True(t, TransactionRefund.IsCredit())
	assert.False(t, TransactionRedeem.IsCredit())
	assert.False(t, TransactionExpire.IsCredit())

	assert.True(t, TransactionBonus.CountsTowardLifetime())
	assert.False(t, TransactionRefund.CountsTowardLifetime())
	assert.False(t, TransactionType("adjust").Valid())
}

func TestJSONScanAcceptsTextAndBytes(t *testing.T) {
	var fromBytes JSON
	require.NoError(t, fromBytes.Scan([]byte(`{"order_id":"A-1"}`)))
	assert.Equal(t, "A-1", fromBytes["order_id"])

	var fromText JSON
	require.NoError(t, fromText.Scan(`{"reward":"gift"}`))
	assert.Equal(t, "gift", fromText["reward"])

	var empty JSON
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)

	assert.Error(t, empty.Scan(42))
}
