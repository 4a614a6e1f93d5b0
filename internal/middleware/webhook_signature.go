package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaspay/loyalty/internal/utils"
)

// SignatureHeader carries the HMAC of the raw request body
const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

// WebhookSignatureMiddleware rejects requests whose body is not signed with secret.
// The body is restored so handlers can bind it.
func WebhookSignatureMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body", "code": "invalid_input"})
			return
		}
		if len(body) > maxWebhookBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large", "code": "invalid_input"})
			return
		}

		if !utils.VerifyHMAC(body, c.GetHeader(SignatureHeader), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature", "code": "unauthorized"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
