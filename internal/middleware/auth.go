package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/auth"
	"ridedispatch/internal/domain"
)

const (
	ctxUserID   = "user_id"
	ctxUserRole = "user_role"
)

// JWTAuthMiddleware rejects requests without a valid bearer token and stores
// the caller in the context for handlers.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "authorization header is required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			unauthorized(c, "invalid authorization format")
			return
		}

		actor, err := auth.ValidateToken(parts[1], secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		c.Set(ctxUserID, actor.UserID)
		c.Set(ctxUserRole, string(actor.Role))
		c.Next()
	}
}

// Actor returns the authenticated caller, if any.
func Actor(c *gin.Context) (auth.Actor, bool) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		return auth.Actor{}, false
	}
	return auth.Actor{UserID: userID, Role: domain.ActorRole(c.GetString(ctxUserRole))}, true
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"kind":    "UNAUTHORIZED",
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
