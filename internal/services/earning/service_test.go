package earning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *ledger.LedgerService) {
	db := testutil.NewTestDB(t)
	ledgerService := ledger.NewLedgerService(db, testutil.StandardTable(t))
	rules, err := NewRuleTable(testutil.StandardRules())
	require.NoError(t, err)
	return NewService(db, ledgerService, rules), ledgerService
}

func TestAccrueUsesCurrentTierMultiplier(t *testing.T) {
	svc, ledgerService := newTestService(t)
	ctx := context.Background()
	accountID := uuid.New()

	// Reach Gold
	_, err := ledgerService.RecordTransaction(ctx, ledger.Entry{
		AccountID: accountID, Type: models.TransactionBonus, Points: 15000, Description: "migration",
	})
	require.NoError(t, err)

	result, err := svc.Accrue(ctx, Event{AccountID: accountID, Action: models.ActionPurchase, Amount: 120, Reference: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(180), result.Points)
	assert.Equal(t, "Gold", result.Tier)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, models.TransactionEarn, result.Transaction.Type)
	assert.Equal(t, "ord-1", result.Transaction.Reference)
	assert.Equal(t, "purchase", result.Transaction.MetaData["rule_id"])

	summary, err := ledgerService.GetAccountSummary(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(15180), summary.AvailablePoints)
}

func TestAccrueIsIdempotentPerReference(t *testing.T) {
	svc, ledgerService := newTestService(t)
	ctx := context.Background()
	accountID := uuid.New()

	event := Event{AccountID: accountID, Action: models.ActionPurchase, Amount: 40, Reference: "ord-9"}
	first, err := svc.Accrue(ctx, event)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Accrue(ctx, event)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, int64(40), second.Points)

	// Same reference for a different action is a different event
	review, err := svc.Accrue(ctx, Event{AccountID: accountID, Action: models.ActionReview, Reference: "ord-9"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), review.Points)

	summary, err := ledgerService.GetAccountSummary(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), summary.AvailablePoints)
}

func TestAccrueZeroPointsRecordsNothing(t *testing.T) {
	svc, ledgerService := newTestService(t)
	ctx := context.Background()
	accountID := uuid.New()

	result, err := svc.Accrue(ctx, Event{AccountID: accountID, Action: models.ActionPurchase, Amount: 0.5, Reference: "ord-small"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Points)
	assert.Nil(t, result.Transaction)

	history, total, err := ledgerService.GetTransactionHistory(ctx, accountID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, int64(0), total)
}

func TestAccrueErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Accrue(ctx, Event{AccountID: uuid.New(), Action: "dance"})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownAction))

	_, err = svc.Accrue(ctx, Event{AccountID: uuid.New(), Action: models.ActionPurchase, Amount: -5})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))

	_, err = svc.Accrue(ctx, Event{Action: models.ActionSignup})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
