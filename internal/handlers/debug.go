package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roomchat/internal/models"
	"roomchat/internal/telemetry"
)

// TokenIssuer mints credentials for local testing.
type TokenIssuer interface {
	Issue(user models.UserRef, ttl time.Duration) (string, error)
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, issuer TokenIssuer, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.Record{Action: telemetry.ActionDebug}, requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/token", func(c *gin.Context) {
		if issuer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuer not configured"})
			return
		}
		var req struct {
			UserID   int64  `json:"user_id" binding:"required,gt=0"`
			Username string `json:"username" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := issuer.Issue(models.UserRef{ID: req.UserID, Username: req.Username}, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})
}
