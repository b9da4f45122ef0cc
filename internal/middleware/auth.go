package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
)

// Auth accepts either a JWT minted by /auth/token or a raw API key. Keys
// never contain dots, so the shape of the credential selects the path.
// On success the context carries user_id, user_tier, and api_key.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerCredential(c)
		if !ok {
			return
		}

		if strings.Contains(credential, ".") {
			authenticateToken(c, authService, logger, credential)
			return
		}
		authenticateAPIKey(c, authService, logger, credential)
	}
}

// bearerCredential extracts the Bearer value, aborting with the API's
// error envelope when the header is absent or malformed.
func bearerCredential(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		abortUnauthorized(c, "MISSING_AUTHORIZATION", "Authorization header is required")
		return "", false
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		abortUnauthorized(c, "INVALID_AUTHORIZATION_FORMAT",
			"Authorization header must be in format 'Bearer <token>'")
		return "", false
	}
	return parts[1], true
}

func authenticateToken(c *gin.Context, authService *services.AuthService, logger *logrus.Logger, token string) {
	claims, err := authService.ValidateToken(token)
	if err != nil {
		logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Rejected invalid token")
		abortUnauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	c.Set("user_id", claims.UserID)
	c.Set("user_tier", claims.UserTier)
	c.Set("api_key", claims.APIKey)
	c.Next()
}

func authenticateAPIKey(c *gin.Context, authService *services.AuthService, logger *logrus.Logger, apiKey string) {
	userTier, err := authService.ValidateAPIKey(apiKey)
	if err != nil {
		logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Rejected invalid API key")
		abortUnauthorized(c, "INVALID_API_KEY", "Invalid API key")
		return
	}

	// Direct API-key callers name their shelf with X-User-ID; without it
	// each request gets a throwaway identity with an empty library.
	userID := uuid.New()
	if userIDStr := c.GetHeader("X-User-ID"); userIDStr != "" {
		userID, err = uuid.Parse(userIDStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_USER_ID",
					"message": "Invalid user ID format",
				},
			})
			return
		}
	}

	c.Set("user_id", userID)
	c.Set("user_tier", userTier)
	c.Set("api_key", apiKey)
	c.Next()
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
