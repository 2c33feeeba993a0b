package middlewares

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const issueLimitWindow = 24 * time.Hour

// IssueRateLimiter caps accepted submissions per user per day with a Redis
// counter. A nil client disables the limit.
func IssueRateLimiter(client *redis.Client, prefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		ctx := c.Request.Context()
		userKey := prefix + ":" + userID

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			slog.ErrorContext(ctx, "redis error incrementing issue count", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
			return
		}

		// TTL only when the window opens, so refunds do not extend it
		if count == 1 && client.TTL(ctx, userKey).Val() < 0 {
			if err := client.Expire(ctx, userKey, issueLimitWindow).Err(); err != nil {
				slog.ErrorContext(ctx, "redis error setting issue limit ttl", "user_id", userID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
				return
			}
		}

		if count > int64(limit) {
			client.Decr(ctx, userKey) // over-limit attempts are not counted
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()

		// submissions the handler rejected do not use up a slot
		if c.Writer.Status() >= http.StatusBadRequest {
			if err := client.Decr(ctx, userKey).Err(); err != nil {
				slog.ErrorContext(ctx, "redis error refunding issue count", "user_id", userID, "error", err)
			}
		}
	}
}
