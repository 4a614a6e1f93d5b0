package referral

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/testutil"
)

func newTestService(t *testing.T) (*ReferralService, *ledger.LedgerService) {
	db := testutil.NewTestDB(t)
	ledgerService := ledger.NewLedgerService(db, testutil.StandardTable(t))
	return NewReferralService(db, ledgerService), ledgerService
}

func TestCreateReferral(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	referrer := uuid.New()

	referral, err := svc.CreateReferral(ctx, referrer, "  Ama.Mensah@Example.com ", "Ama Mensah")
	require.NoError(t, err)
	assert.Equal(t, "ama.mensah@example.com", referral.RefereeEmail)
	assert.Equal(t, models.ReferralPending, referral.Status)
	assert.True(t, strings.HasPrefix(referral.ShareCode, "ama-mensah-"), referral.ShareCode)
	assert.Len(t, referral.ShareCode, len("ama-mensah-")+shareSuffixLength)

	found, err := svc.FindByShareCode(ctx, strings.ToUpper(referral.ShareCode))
	require.NoError(t, err)
	assert.Equal(t, referral.ID, found.ID)
}

func TestCreateReferralRejectsDuplicatesAndBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	referrer := uuid.New()

	_, err := svc.CreateReferral(ctx, referrer, "kofi@example.com", "Kofi")
	require.NoError(t, err)

	_, err = svc.CreateReferral(ctx, referrer, "KOFI@example.com", "Kofi again")
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateReferral))

	// a different referrer may invite the same person
	_, err = svc.CreateReferral(ctx, uuid.New(), "kofi@example.com", "Kofi")
	assert.NoError(t, err)

	_, err = svc.CreateReferral(ctx, referrer, "not-an-email", "Nobody")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.CreateReferral(ctx, uuid.Nil, "esi@example.com", "Esi")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCreateReferralLosingRaceIsDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	referrer := uuid.New()

	_, err := svc.CreateReferral(ctx, referrer, "yaw@example.com", "Yaw")
	require.NoError(t, err)

	// Hide the stored row from the next lookup, as a concurrent writer's
	// uncommitted row would be, so the unique index rejects the insert
	hide := true
	require.NoError(t, svc.db.Callback().Query().Before("gorm:query").Register("hide_referral", func(tx *gorm.DB) {
		if hide && tx.Statement.Table == "referrals" {
			hide = false
			tx.Statement.AddClause(clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "1 = 0"}}})
		}
	}))

	_, err = svc.CreateReferral(ctx, referrer, "yaw@example.com", "Yaw again")
	require.Error(t, err)
	assert.False(t, hide, "lookup was hidden")
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateReferral), err.Error())
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	referrals, err := svc.ListByReferrer(ctx, referrer)
	require.NoError(t, err)
	assert.Len(t, referrals, 1)
}

func TestInsertFailureWithoutExistingReferralIsTransient(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.insertFailure(context.Background(), uuid.New(), "abena@example.com", errors.New("connection reset"))
	assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestShareCodeFallsBackWhenNameHasNoSlug(t *testing.T) {
	code, err := newShareCode("  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, defaultSlug+"-"), code)

	code, err = newShareCode(strings.Repeat("a long name ", 10))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(code), maxSlugLength+1+shareSuffixLength)
}

func TestShareCodeCollisionRetries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	codes := []string{"dup-aaaaaa", "dup-aaaaaa", "dup-bbbbbb"}
	calls := 0
	svc.shareCode = func(string) (string, error) {
		code := codes[calls]
		calls++
		return code, nil
	}

	first, err := svc.CreateReferral(ctx, uuid.New(), "a@example.com", "A")
	require.NoError(t, err)
	assert.Equal(t, "dup-aaaaaa", first.ShareCode)

	second, err := svc.CreateReferral(ctx, uuid.New(), "b@example.com", "B")
	require.NoError(t, err)
	assert.Equal(t, "dup-bbbbbb", second.ShareCode)
	assert.Equal(t, 3, calls)

	svc.shareCode = func(string) (string, error) { return "dup-aaaaaa", nil }
	_, err = svc.CreateReferral(ctx, uuid.New(), "c@example.com", "C")
	assert.True(t, errors.Is(err, apperrors.ErrCodeSpace))
}

func TestReferralLifecycle(t *testing.T) {
	svc, ledgerService := newTestService(t)
	ctx := context.Background()
	referrer := uuid.New()

	referral, err := svc.CreateReferral(ctx, referrer, "yaw@example.com", "Yaw")
	require.NoError(t, err)

	// rewarding before completion is not allowed
	_, err = svc.RewardReferral(ctx, referral.ID, 500)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	completed, err := svc.MarkCompleted(ctx, referral.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	_, err = svc.MarkCompleted(ctx, referral.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	rewarded, err := svc.RewardReferral(ctx, referral.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralRewarded, rewarded.Status)
	assert.Equal(t, int64(500), rewarded.PointsEarned)
	require.NotNil(t, rewarded.TransactionID)

	_, err = svc.RewardReferral(ctx, referral.ID, 500)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyRewarded))

	_, err = svc.MarkCompleted(ctx, referral.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	account, err := ledgerService.GetAccount(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(500), account.AvailablePoints)
	assert.Equal(t, int64(500), account.LifetimePoints)
	assert.Equal(t, int64(1), account.TransactionCount)

	history, _, err := ledgerService.GetTransactionHistory(ctx, referrer, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionBonus, history[0].Type)
	assert.Equal(t, *rewarded.TransactionID, history[0].ID)

	stored, err := svc.Get(ctx, referral.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralRewarded, stored.Status)
	require.NotNil(t, stored.RewardedAt)
}

func TestRewardReferralErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RewardReferral(ctx, uuid.New(), 500)
	assert.True(t, errors.Is(err, apperrors.ErrReferralNotFound))

	_, err = svc.MarkCompleted(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrReferralNotFound))

	_, err = svc.RewardReferral(ctx, uuid.New(), 0)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrReferralNotFound))

	_, err = svc.FindByShareCode(ctx, "missing-code")
	assert.True(t, errors.Is(err, apperrors.ErrReferralNotFound))
}

func TestListByReferrer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	referrer := uuid.New()

	for _, email := range []string{"one@example.com", "two@example.com"} {
		_, err := svc.CreateReferral(ctx, referrer, email, "Friend")
		require.NoError(t, err)
	}
	_, err := svc.CreateReferral(ctx, uuid.New(), "three@example.com", "Friend")
	require.NoError(t, err)

	referrals, err := svc.ListByReferrer(ctx, referrer)
	require.NoError(t, err)
	assert.Len(t, referrals, 2)
	for _, r := range referrals {
		assert.Equal(t, referrer, r.ReferrerAccountID)
	}
}
