package middlewares

import (
	"log/slog"
	"net/http"
	"strings"

	authUtils "civicreport-be/utils"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey      = "user_id"
	AuthCookieName = "auth_token"
	bearerPrefix   = "Bearer "
)

// AuthMiddleware accepts a bearer token or the auth_token cookie and stores
// the user ID under UserIDKey.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
		if !ok || tokenString == "" {
			tokenString, _ = c.Cookie(AuthCookieName)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		userID, err := authUtils.ParseToken(tokenString, secret)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "token validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
