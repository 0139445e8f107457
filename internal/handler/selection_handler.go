package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-suite/course-select-api/internal/service"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
	"github.com/campus-suite/course-select-api/pkg/response"
)

// SelectionHandler exposes the enroll/drop workflow and the selection
// lifecycle transitions.
type SelectionHandler struct {
	enrollments *service.EnrollmentService
	lifecycle   *service.LifecycleService
	metrics     *service.MetricsService
}

// NewSelectionHandler constructs SelectionHandler.
func NewSelectionHandler(enrollments *service.EnrollmentService, lifecycle *service.LifecycleService, metrics *service.MetricsService) *SelectionHandler {
	return &SelectionHandler{enrollments: enrollments, lifecycle: lifecycle, metrics: metrics}
}

// Enroll godoc
// @Summary Claim a seat in a course instance
// @Tags Selection
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *SelectionHandler) Enroll(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	selection, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordEnrollmentDenial(appErrors.FromError(err).Code)
		}
		response.Error(c, err)
		return
	}
	response.Created(c, selection)
}

// Drop godoc
// @Summary Release the caller's seat in a course instance
// @Tags Selection
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enroll [delete]
func (h *SelectionHandler) Drop(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.enrollments.Drop(c.Request.Context(), c.Param("id"), identity.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "dropped"}, nil)
}

// MyCourses godoc
// @Summary List the caller's selected course instances
// @Tags Selection
// @Produce json
// @Param semesterId query string false "Limit to one semester"
// @Success 200 {object} response.Envelope
// @Router /me/courses [get]
func (h *SelectionHandler) MyCourses(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.enrollments.ListSelected(c.Request.Context(), identity.UserID, c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// StartSelection godoc
// @Summary Reopen selection for a course instance, clearing its roster
// @Tags Selection
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/selection/start [post]
func (h *SelectionHandler) StartSelection(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.StartSelection(c.Request.Context(), identity, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "selection restarted"}, nil)
}

// FinalizeSelection godoc
// @Summary Lock the roster of a course instance
// @Tags Selection
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/selection/finalize [post]
func (h *SelectionHandler) FinalizeSelection(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.FinalizeSelection(c.Request.Context(), identity, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "selection finalized"}, nil)
}
