package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/jobs"
	"github.com/revaspay/loyalty/internal/queue"
)

// WebhookHandler accepts signed events from upstream services and queues them
type WebhookHandler struct {
	broker     queue.Broker
	maxRetries int
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(broker queue.Broker, maxRetries int) *WebhookHandler {
	return &WebhookHandler{
		broker:     broker,
		maxRetries: maxRetries,
	}
}

// LoyaltyEvent queues a business event for accrual
func (h *WebhookHandler) LoyaltyEvent(c *gin.Context) {
	var payload jobs.LoyaltyEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "Invalid payload")
		return
	}

	jobID, err := jobs.EnqueueLoyaltyEvent(c.Request.Context(), h.broker, payload, h.maxRetries)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Queued loyalty event %s %s as job %s", payload.Type, payload.Reference, jobID)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": jobID})
}

// ReferralQualified queues completion and payout of a referral
func (h *WebhookHandler) ReferralQualified(c *gin.Context) {
	var payload jobs.ReferralQualifiedPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "Invalid payload")
		return
	}

	jobID, err := jobs.EnqueueReferralQualified(c.Request.Context(), h.broker, payload, h.maxRetries)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Queued qualified referral as job %s", jobID)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": jobID})
}
