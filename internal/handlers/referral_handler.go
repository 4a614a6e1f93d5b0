package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/services/referral"
)

// ReferralHandler handles referral invites
type ReferralHandler struct {
	referrals *referral.ReferralService
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(referrals *referral.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// CreateReferral invites a prospect on behalf of the caller
func (h *ReferralHandler) CreateReferral(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	var input struct {
		Email string `json:"email" binding:"required"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "email is required")
		return
	}

	ref, err := h.referrals.CreateReferral(c.Request.Context(), accountID, input.Email, input.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ref)
}

// GetReferrals lists the caller's referrals
func (h *ReferralHandler) GetReferrals(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	referrals, err := h.referrals.ListByReferrer(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, referrals)
}
