package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"roomchat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if userID := c.GetInt64(middleware.UserIDKey); userID != 0 {
		return &userID
	}
	return nil
}
