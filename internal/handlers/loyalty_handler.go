package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/services/redemption"
)

// IdempotencyKeyHeader carries the client's retry key for redemptions
const IdempotencyKeyHeader = "Idempotency-Key"

// LoyaltyHandler handles the customer-facing loyalty endpoints
type LoyaltyHandler struct {
	ledger      *ledger.LedgerService
	redemptions *redemption.RedemptionService
}

// NewLoyaltyHandler creates a new loyalty handler
func NewLoyaltyHandler(ledgerService *ledger.LedgerService, redemptions *redemption.RedemptionService) *LoyaltyHandler {
	return &LoyaltyHandler{
		ledger:      ledgerService,
		redemptions: redemptions,
	}
}

// GetSummary returns the caller's balance and tier progress
func (h *LoyaltyHandler) GetSummary(c *gin.Context) {
	accountID, ok := currentAccountID(c)
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

// GetTransactions returns the caller's ledger, newest first
func (h *LoyaltyHandler) GetTransactions(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}

	transactions, total, err := h.ledger.GetTransactionHistory(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// GetRewards lists rewards the caller's tier may redeem
func (h *LoyaltyHandler) GetRewards(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	rewards, err := h.redemptions.AvailableRewards(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rewards)
}

// Redeem exchanges points for a reward
func (h *LoyaltyHandler) Redeem(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	var input struct {
		RewardID uuid.UUID `json:"reward_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "reward_id is required")
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	outcome, err := h.redemptions.Redeem(c.Request.Context(), accountID, input.RewardID, key)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if outcome.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, outcome)
}

// GetRedemptions lists the caller's redemptions
func (h *LoyaltyHandler) GetRedemptions(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	redemptions, err := h.redemptions.ListRedemptions(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

// GetTiers returns the tier table
func (h *LoyaltyHandler) GetTiers(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Tiers().Tiers())
}
