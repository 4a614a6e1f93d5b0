package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/jobs"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/services/catalog"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/services/redemption"
	"github.com/revaspay/loyalty/internal/services/referral"
)

// FailedJobLister lists dead-lettered jobs
type FailedJobLister interface {
	List(ctx context.Context, limit int) ([]models.FailedJob, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	ledger        *ledger.LedgerService
	redemptions   *redemption.RedemptionService
	catalog       *catalog.CatalogService
	referrals     *referral.ReferralService
	referralBonus int64
	broker        queue.Broker
	failedJobs    FailedJobLister
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	ledgerService *ledger.LedgerService,
	redemptions *redemption.RedemptionService,
	catalogService *catalog.CatalogService,
	referrals *referral.ReferralService,
	referralBonus int64,
	broker queue.Broker,
	failedJobs FailedJobLister,
) *AdminHandler {
	return &AdminHandler{
		ledger:        ledgerService,
		redemptions:   redemptions,
		catalog:       catalogService,
		referrals:     referrals,
		referralBonus: referralBonus,
		broker:        broker,
		failedJobs:    failedJobs,
	}
}

// GetAccountSummary returns any account's summary
func (h *AdminHandler) GetAccountSummary(c *gin.Context) {
	accountID, ok := paramID(c, "id")
	if !ok {
		return
	}

	summary, err := h.ledger.GetAccountSummary(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// AuditAccount recomputes an account's balances from its ledger
func (h *AdminHandler) AuditAccount(c *gin.Context) {
	accountID, ok := paramID(c, "id")
	if !ok {
		return
	}

	report, err := h.ledger.Audit(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GrantBonus credits goodwill points to an account
func (h *AdminHandler) GrantBonus(c *gin.Context) {
	accountID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Points         int64  `json:"points" binding:"required"`
		Description    string `json:"description" binding:"required"`
		Reference      string `json:"reference"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "points and description are required")
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		key = input.IdempotencyKey
	}
	if key != "" {
		key = "admin-bonus:" + key
	}

	transaction, err := h.ledger.RecordTransaction(c.Request.Context(), ledger.Entry{
		AccountID:      accountID,
		Type:           models.TransactionBonus,
		Points:         input.Points,
		Description:    input.Description,
		Reference:      input.Reference,
		IdempotencyKey: key,
		MetaData: map[string]interface{}{
			"granted_by": c.GetString("user_id"),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, transaction)
}

// UpsertReward stores reward state pushed by the catalog owner
func (h *AdminHandler) UpsertReward(c *gin.Context) {
	rewardID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input catalog.RewardInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid payload")
		return
	}

	reward, created, err := h.catalog.UpsertReward(c.Request.Context(), rewardID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, reward)
}

// ListRewards returns the full catalog, including disabled rewards
func (h *AdminHandler) ListRewards(c *gin.Context) {
	includeUnavailable := c.DefaultQuery("include_unavailable", "true") == "true"

	rewards, err := h.catalog.ListRewards(c.Request.Context(), includeUnavailable)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rewards)
}

// ReverseRedemption refunds a redemption
func (h *AdminHandler) ReverseRedemption(c *gin.Context) {
	redemptionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "Invalid payload")
			return
		}
	}

	transaction, err := h.redemptions.Reverse(c.Request.Context(), redemptionID, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, transaction)
}

// CompleteReferral marks a pending referral completed
func (h *AdminHandler) CompleteReferral(c *gin.Context) {
	referralID, ok := paramID(c, "id")
	if !ok {
		return
	}

	ref, err := h.referrals.MarkCompleted(c.Request.Context(), referralID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ref)
}

// RewardReferral pays the bonus on a completed referral
func (h *AdminHandler) RewardReferral(c *gin.Context) {
	referralID, ok := paramID(c, "id")
	if !ok {
		return
	}

	bonus := h.referralBonus
	var input struct {
		Points *int64 `json:"points"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "Invalid payload")
			return
		}
	}
	if input.Points != nil {
		bonus = *input.Points
	}

	ref, err := h.referrals.RewardReferral(c.Request.Context(), referralID, bonus)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ref)
}

// GetQueueStats reports the depth of the loyalty queues
func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	queues := []string{queue.QueueLoyaltyEvents, queue.QueueReferralQualified, jobs.QueueTierChanges}
	stats := make([]*queue.QueueStats, 0, len(queues))
	for _, name := range queues {
		s, err := h.broker.Stats(c.Request.Context(), name)
		if err != nil {
			respondError(c, apperrors.Transient(err, "error reading queue stats"))
			return
		}
		stats = append(stats, s)
	}

	c.JSON(http.StatusOK, stats)
}

// GetFailedJobs lists dead-lettered jobs, newest first
func (h *AdminHandler) GetFailedJobs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		badRequest(c, "limit must be between 1 and 500")
		return
	}

	failed, err := h.failedJobs.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, apperrors.Transient(err, "error listing failed jobs"))
		return
	}

	c.JSON(http.StatusOK, failed)
}
