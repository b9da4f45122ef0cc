package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/pkg/models"
)

type AuthHandler struct {
	auth      *services.AuthService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		validator: validator.New(),
		logger:    logger,
	}
}

// Token exchanges an API key for a short-lived JWT.
func (h *AuthHandler) Token(c *gin.Context) {
	var request models.AuthRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	userTier, err := h.auth.ValidateAPIKey(request.APIKey)
	if err != nil {
		h.logger.WithError(err).Warn("API key validation failed")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_API_KEY",
				"message": "Invalid API key",
			},
		})
		return
	}

	userID := uuid.New()
	if request.UserID != "" {
		parsed, err := uuid.Parse(request.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_USER_ID",
					"message": "Invalid user ID format",
				},
			})
			return
		}
		userID = parsed
	}

	token, err := h.auth.GenerateToken(userID, request.APIKey, userTier)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TOKEN_GENERATION_FAILED",
				"message": "Failed to generate authentication token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.auth.TokenTTL()),
		UserTier:  userTier,
	})
}
