package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
)

// RateLimit applies the per-tier request budget. Must run after Auth; a
// missing user identity means a wiring mistake, which is logged and
// waved through rather than turned into a user-facing failure.
func RateLimit(rateLimitService *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get("user_id")
		userID, ok := val.(uuid.UUID)
		if !exists || !ok {
			logger.WithField("path", c.Request.URL.Path).Error("Rate limit reached without an authenticated user")
			c.Next()
			return
		}
		userTier := c.GetString("user_tier")
		if userTier == "" {
			userTier = "free"
		}

		allowed, info, err := rateLimitService.IsAllowed(userID.String(), userTier)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Error("Rate limit check failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"user_id":   userID,
				"user_tier": userTier,
				"limit":     info.Limit,
			}).Warn("Request over the rate limit")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			return
		}

		c.Next()
	}
}
