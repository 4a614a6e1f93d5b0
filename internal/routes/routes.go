package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/config"
	"github.com/revaspay/loyalty/internal/handlers"
	"github.com/revaspay/loyalty/internal/metrics"
	"github.com/revaspay/loyalty/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Loyalty  *handlers.LoyaltyHandler
	Referral *handlers.ReferralHandler
	Webhook  *handlers.WebhookHandler
	Admin    *handlers.AdminHandler
}

// NewRouter builds the gin engine with global middleware and every route group
func NewRouter(cfg *config.Config, h Handlers, rateLimiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.IdempotencyKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecureHeadersMiddleware(middleware.DefaultSecureHeadersConfig(cfg.IsProduction())))
	router.Use(middleware.MetricsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	RegisterRoutes(router, cfg, h, rateLimiter)
	SetupWebhookRoutes(router, cfg, h.Webhook, rateLimiter)

	return router
}

// RegisterRoutes configures the authenticated API routes
func RegisterRoutes(router *gin.Engine, cfg *config.Config, h Handlers, rateLimiter *middleware.RateLimiter) {
	api := router.Group("/api")

	// Public tier table
	api.GET("/loyalty/tiers", rateLimiter.IPRateLimiterMiddleware(), h.Loyalty.GetTiers)

	// Customer routes, rate limited per account
	loyalty := api.Group("/loyalty")
	loyalty.Use(middleware.AuthMiddleware(cfg.JWT.Secret), rateLimiter.AccountRateLimiterMiddleware())
	{
		loyalty.GET("/summary", h.Loyalty.GetSummary)
		loyalty.GET("/transactions", h.Loyalty.GetTransactions)
		loyalty.GET("/rewards", h.Loyalty.GetRewards)
		loyalty.POST("/redemptions", h.Loyalty.Redeem)
		loyalty.GET("/redemptions", h.Loyalty.GetRedemptions)
		loyalty.POST("/referrals", h.Referral.CreateReferral)
		loyalty.GET("/referrals", h.Referral.GetReferrals)
	}

	// Operator routes
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminMiddleware())
	{
		admin.GET("/accounts/:id/summary", h.Admin.GetAccountSummary)
		admin.GET("/accounts/:id/audit", h.Admin.AuditAccount)
		admin.POST("/accounts/:id/bonus", h.Admin.GrantBonus)

		admin.GET("/rewards", h.Admin.ListRewards)
		admin.PUT("/rewards/:id", h.Admin.UpsertReward)

		admin.POST("/redemptions/:id/reverse", h.Admin.ReverseRedemption)

		admin.POST("/referrals/:id/complete", h.Admin.CompleteReferral)
		admin.POST("/referrals/:id/reward", h.Admin.RewardReferral)

		admin.GET("/jobs/stats", h.Admin.GetQueueStats)
		admin.GET("/jobs/failed", h.Admin.GetFailedJobs)
	}
}
