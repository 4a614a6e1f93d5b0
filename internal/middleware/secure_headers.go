package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecureHeadersConfig contains configuration for secure headers
type SecureHeadersConfig struct {
	UseHSTS               bool
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
	XFrameOptions         string
	ReferrerPolicy        string
}

// DefaultSecureHeadersConfig returns the default secure headers configuration
func DefaultSecureHeadersConfig(production bool) SecureHeadersConfig {
	return SecureHeadersConfig{
		UseHSTS:               production,
		HSTSMaxAge:            365 * 24 * time.Hour, // 1 year
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecureHeadersMiddleware adds security headers to API responses
func SecureHeadersMiddleware(config SecureHeadersConfig) gin.HandlerFunc {
	hsts := "max-age=" + strconv.FormatInt(int64(config.HSTSMaxAge.Seconds()), 10)
	if config.HSTSIncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	return func(c *gin.Context) {
		if config.UseHSTS {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.XFrameOptions != "" {
			c.Header("X-Frame-Options", config.XFrameOptions)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		c.Header("X-Content-Type-Options", "nosniff")

		// Balances and codes must never be cached by intermediaries
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}
