package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/messaging"
	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/pkg/models"
)

type LibraryHandler struct {
	library    *services.LibraryService
	messageBus *messaging.MessageBus
	validator  *validator.Validate
	logger     *logrus.Logger
}

func NewLibraryHandler(library *services.LibraryService, messageBus *messaging.MessageBus, logger *logrus.Logger) *LibraryHandler {
	return &LibraryHandler{
		library:    library,
		messageBus: messageBus,
		validator:  validator.New(),
		logger:     logger,
	}
}

func (h *LibraryHandler) List(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	entries, err := h.library.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list library entries")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_LIST_FAILED",
				"message": "Failed to load library",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *LibraryHandler) Get(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := h.entryID(c)
	if !ok {
		return
	}

	entry, err := h.library.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "ENTRY_NOT_FOUND",
					"message": "Library entry not found",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to load library entry")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_GET_FAILED",
				"message": "Failed to load library entry",
			},
		})
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *LibraryHandler) Add(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	request, ok := h.bindEntry(c)
	if !ok {
		return
	}

	entry, err := h.library.Add(c.Request.Context(), userID, request)
	if err != nil {
		h.logger.WithError(err).Error("Failed to add library entry")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_ADD_FAILED",
				"message": "Failed to add library entry",
			},
		})
		return
	}

	h.publishEvent(userID, "add", entry.ID, entry.Title, 1)
	c.JSON(http.StatusCreated, entry)
}

func (h *LibraryHandler) Update(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := h.entryID(c)
	if !ok {
		return
	}
	request, ok := h.bindEntry(c)
	if !ok {
		return
	}

	entry, err := h.library.Update(c.Request.Context(), userID, id, request)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "ENTRY_NOT_FOUND",
					"message": "Library entry not found",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to update library entry")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_UPDATE_FAILED",
				"message": "Failed to update library entry",
			},
		})
		return
	}

	h.publishEvent(userID, "update", entry.ID, entry.Title, 1)
	c.JSON(http.StatusOK, entry)
}

func (h *LibraryHandler) Delete(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := h.entryID(c)
	if !ok {
		return
	}

	if err := h.library.Delete(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "ENTRY_NOT_FOUND",
					"message": "Library entry not found",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to delete library entry")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_DELETE_FAILED",
				"message": "Failed to delete library entry",
			},
		})
		return
	}

	h.publishEvent(userID, "delete", id, "", 1)
	c.Status(http.StatusNoContent)
}

func (h *LibraryHandler) Import(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var request models.LibraryImportRequest
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

	result, err := h.library.Import(c.Request.Context(), userID, &request)
	if err != nil {
		h.logger.WithError(err).Error("Failed to import library entries")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_IMPORT_FAILED",
				"message": "Failed to import library entries",
			},
		})
		return
	}

	h.publishEvent(userID, "import", 0, "", result.Imported)
	c.JSON(http.StatusOK, result)
}

func (h *LibraryHandler) entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ENTRY_ID",
				"message": "Entry ID must be a positive integer",
			},
		})
		return 0, false
	}
	return id, true
}

func (h *LibraryHandler) bindEntry(c *gin.Context) (*models.LibraryEntryRequest, bool) {
	var request models.LibraryEntryRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return nil, false
	}

	if request.Status == "" {
		request.Status = models.StatusUnread
	}

	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return nil, false
	}

	return &request, true
}

// publishEvent is best effort: the API response never waits on Kafka.
func (h *LibraryHandler) publishEvent(userID uuid.UUID, action string, entryID int64, title string, count int) {
	if h.messageBus == nil {
		return
	}

	event := messaging.LibraryEvent{
		UserID:    userID,
		Action:    action,
		EntryID:   entryID,
		Title:     title,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
	if err := h.messageBus.PublishLibraryEvent(event); err != nil {
		h.logger.WithError(err).WithField("action", action).Warn("Failed to publish library event")
	}
}
