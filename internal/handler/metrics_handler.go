package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-suite/course-select-api/internal/service"
	"github.com/campus-suite/course-select-api/pkg/response"
)

// MetricsHandler serves aggregated runtime metrics for admins.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs MetricsHandler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot godoc
// @Summary Runtime metrics snapshot
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
