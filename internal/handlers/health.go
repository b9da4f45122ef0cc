package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
)

type HealthHandler struct {
	logger        *logrus.Logger
	healthService *services.HealthService
}

func NewHealthHandler(logger *logrus.Logger, healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
	}
}

// Check reports component health. Degraded still answers 200: the API can
// serve library reads and cached recommendations with Kafka or warm Redis
// down, and load balancers should not pull the instance for that.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth()

	httpStatus := http.StatusOK
	switch status.Status {
	case "healthy", "degraded":
	case "unhealthy":
		httpStatus = http.StatusServiceUnavailable
	default:
		h.logger.WithField("status", status.Status).Error("Health check produced unknown status")
		httpStatus = http.StatusInternalServerError
	}

	c.JSON(httpStatus, status)
}
