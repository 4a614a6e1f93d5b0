package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/config"
	"github.com/revaspay/loyalty/internal/handlers"
	"github.com/revaspay/loyalty/internal/middleware"
)

// SetupWebhookRoutes configures routes for webhook endpoints
func SetupWebhookRoutes(router *gin.Engine, cfg *config.Config, webhookHandler *handlers.WebhookHandler, rateLimiter *middleware.RateLimiter) {
	// Webhook routes - no JWT, verified by HMAC signature
	webhookGroup := router.Group("/webhooks")
	webhookGroup.Use(rateLimiter.IPRateLimiterMiddleware(), middleware.WebhookSignatureMiddleware(cfg.Webhook.Secret))
	{
		webhookGroup.POST("/events", webhookHandler.LoyaltyEvent)
		webhookGroup.POST("/referrals/qualified", webhookHandler.ReferralQualified)
	}
}
