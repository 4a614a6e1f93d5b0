package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/revaspay/loyalty/internal/apperrors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respondError renders err as {"error", "code"} with the status its kind maps to
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("ALERT: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		message = "internal server error"
	}
	c.JSON(status, gin.H{"error": message, "code": apperrors.CodeOf(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": apperrors.ErrInvalidInput.Code})
}

// currentAccountID returns the authenticated account id set by AuthMiddleware
func currentAccountID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr := c.GetString("user_id")
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		badRequest(c, "invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// paramID parses the named path parameter as a UUID
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads page and page_size query parameters
func pagination(c *gin.Context) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		badRequest(c, "page must be a positive integer")
		return 0, 0, false
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		badRequest(c, "page_size must be between 1 and 100")
		return 0, 0, false
	}
	return page, pageSize, true
}
