package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/revaspay/loyalty/internal/config"
	"github.com/revaspay/loyalty/internal/database"
	"github.com/revaspay/loyalty/internal/handlers"
	"github.com/revaspay/loyalty/internal/jobs"
	"github.com/revaspay/loyalty/internal/middleware"
	"github.com/revaspay/loyalty/internal/queue"
	"github.com/revaspay/loyalty/internal/routes"
	"github.com/revaspay/loyalty/internal/services/catalog"
	"github.com/revaspay/loyalty/internal/services/earning"
	"github.com/revaspay/loyalty/internal/services/ledger"
	"github.com/revaspay/loyalty/internal/services/redemption"
	"github.com/revaspay/loyalty/internal/services/referral"
	"github.com/revaspay/loyalty/internal/services/tier"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()
	setupLogging(cfg.Log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Webhook.Secret == "" {
		log.Println("Warning: WEBHOOK_SECRET is not set, all webhook requests will be rejected")
	}

	// Load the tier table and earning rules
	program, err := config.LoadProgram(cfg.Loyalty.ProgramFile)
	if err != nil {
		log.Fatalf("Failed to load loyalty program: %v", err)
	}
	tiers, err := tier.NewTable(program.Tiers)
	if err != nil {
		log.Fatalf("Invalid tier table: %v", err)
	}
	rules, err := earning.NewRuleTable(program.EarningRules)
	if err != nil {
		log.Fatalf("Invalid earning rules: %v", err)
	}
	referralBonus := program.ReferralBonus(cfg.Loyalty.ReferralBonusPoints)

	// Initialize database
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis client
	redisClient := newRedisClient(cfg.Redis)

	// Test Redis connection
	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Create Redis-backed queue instance
	redisQueue := queue.NewRedisQueue(redisClient)
	deadLetters := queue.NewGormDeadLetterStore(db)

	// Initialize services
	ledgerService := ledger.NewLedgerService(db, tiers,
		ledger.WithExpiryDays(cfg.Loyalty.ExpiryDays),
		ledger.WithNotifier(jobs.NewTierChangePublisher(redisQueue)),
	)
	earningService := earning.NewService(db, ledgerService, rules)
	redemptionService := redemption.NewRedemptionService(db, ledgerService)
	referralService := referral.NewReferralService(db, ledgerService)
	catalogService := catalog.NewCatalogService(db, tiers)

	// Register all job handlers
	jobProcessor := queue.NewJobProcessor(redisQueue, deadLetters, cfg.Queue.Workers)
	jobs.RegisterAllJobHandlers(jobProcessor, earningService, referralService, referralBonus)

	// Schedule recurring jobs
	scheduler := queue.NewScheduler()
	if cfg.Loyalty.ExpiryDays > 0 {
		if err := jobs.ScheduleRecurringJobs(scheduler, ledgerService, cfg.Loyalty.ExpirySweepInterval); err != nil {
			log.Fatalf("Failed to schedule recurring jobs: %v", err)
		}
	}

	// Initialize handlers
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := routes.NewRouter(cfg, routes.Handlers{
		Loyalty:  handlers.NewLoyaltyHandler(ledgerService, redemptionService),
		Referral: handlers.NewReferralHandler(referralService),
		Webhook:  handlers.NewWebhookHandler(redisQueue, cfg.Queue.MaxRetries),
		Admin: handlers.NewAdminHandler(ledgerService, redemptionService, catalogService, referralService,
			referralBonus, redisQueue, deadLetters),
	}, rateLimiter)

	// Start background job processor and scheduler
	if cfg.Queue.Enabled {
		jobProcessor.Start()
		scheduler.Start()
	} else {
		log.Println("Queue workers disabled, this instance only serves HTTP")
	}

	// Start server
	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop background work after in-flight requests have drained
	scheduler.Stop()
	jobProcessor.Stop()
	rateLimiter.Stop()

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Println("Server exiting")
}

// setupLogging mirrors log output to a rotating file when one is configured
func setupLogging(cfg config.LogConfig) {
	if cfg.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out
}

// newRedisClient accepts either a redis:// URL or a bare host:port address
func newRedisClient(cfg config.RedisConfig) *redis.Client {
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return redis.NewClient(opts)
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Port)
	return srv
}
