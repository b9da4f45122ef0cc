package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/pkg/models"
)

type RecommendationHandler struct {
	recommender *services.RecommendationOrchestrator
	library     *services.LibraryService
	logger      *logrus.Logger
}

func NewRecommendationHandler(
	recommender *services.RecommendationOrchestrator,
	library *services.LibraryService,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		library:     library,
		logger:      logger,
	}
}

func (h *RecommendationHandler) Get(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	entries, err := h.library.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load library for recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIBRARY_LIST_FAILED",
				"message": "Failed to load library",
			},
		})
		return
	}

	resp, err := h.recommender.Recommend(c.Request.Context(), userID, entries, req)
	if err != nil {
		h.logger.WithError(err).Error("Recommendation pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) parseRequest(c *gin.Context) (models.RecommendRequest, bool) {
	var req models.RecommendRequest

	if s := c.Query("min_rating"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 10 {
			h.badParam(c, "min_rating", "must be an integer between 1 and 10")
			return req, false
		}
		req.MinRating = v
	}

	if s := c.Query("seed_mode"); s != "" {
		mode := models.SeedMode(s)
		if mode != models.SeedLiked && mode != models.SeedAllRead {
			h.badParam(c, "seed_mode", "must be 'liked' or 'all_read'")
			return req, false
		}
		req.SeedMode = mode
	}

	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			h.badParam(c, "limit", "must be a positive integer")
			return req, false
		}
		req.Limit = v
	}

	if s := c.Query("seed_ids"); s != "" {
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				h.badParam(c, "seed_ids", "must be a comma-separated list of entry IDs")
				return req, false
			}
			req.SeedIDs = append(req.SeedIDs, id)
		}
	}

	req.Language = c.Query("language")
	req.Debug = c.Query("debug") == "true"

	return req, true
}

func (h *RecommendationHandler) badParam(c *gin.Context, name, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "INVALID_PARAMETER",
			"message": "Invalid query parameter: " + name,
			"details": detail,
		},
	})
}
