package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements token bucket rate limiting keyed by client IP or account
type RateLimiter struct {
	limiters      map[string]*limiterEntry
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	idleTTL       time.Duration
	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	limiter := &RateLimiter{
		limiters:      make(map[string]*limiterEntry),
		limit:         rate.Limit(requestsPerSecond),
		burst:         burst,
		idleTTL:       10 * time.Minute,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically removes idle limiters to prevent memory leaks
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case now := <-rl.cleanupTicker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow("ip:" + c.ClientIP()) {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

// AccountRateLimiterMiddleware limits requests per authenticated account.
// It must run after AuthMiddleware.
func (rl *RateLimiter) AccountRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.Allow("account:" + key) {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
		"code":  "rate_limited",
	})
	c.Abort()
}
