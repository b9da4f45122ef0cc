package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/pkg/models"
)

type PreferenceHandler struct {
	preferences *services.PreferenceService
	validator   *validator.Validate
	logger      *logrus.Logger
}

func NewPreferenceHandler(preferences *services.PreferenceService, logger *logrus.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		preferences: preferences,
		validator:   validator.New(),
		logger:      logger,
	}
}

// Record stores an explicit like or dislike against a work.
func (h *PreferenceHandler) Record(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var request models.PreferenceRequest
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

	signal, err := h.preferences.Record(c.Request.Context(), userID, &request)
	if err != nil {
		h.logger.WithError(err).Error("Failed to record preference")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PREFERENCE_RECORD_FAILED",
				"message": "Failed to record preference",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, signal)
}
