package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-suite/course-select-api/internal/service"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
	"github.com/campus-suite/course-select-api/pkg/response"
)

// CourseHandler exposes course instance browsing and administration endpoints.
type CourseHandler struct {
	enrollments *service.EnrollmentService
	lifecycle   *service.LifecycleService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(enrollments *service.EnrollmentService, lifecycle *service.LifecycleService) *CourseHandler {
	return &CourseHandler{enrollments: enrollments, lifecycle: lifecycle}
}

// ListAvailable godoc
// @Summary List course instances available to the caller
// @Tags Courses
// @Produce json
// @Param week query int false "Limit schedules to a teaching week"
// @Success 200 {object} response.Envelope
// @Router /courses/available [get]
func (h *CourseHandler) ListAvailable(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	week := queryInt(c, "week")
	courses, err := h.enrollments.ListAvailable(c.Request.Context(), identity.UserID, week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get a course instance with its schedules
// @Tags Courses
// @Produce json
// @Param id path string true "Course instance ID"
// @Param week query int false "Limit schedules to a teaching week"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	week := queryInt(c, "week")
	course, err := h.enrollments.GetCourse(c.Request.Context(), c.Param("id"), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ListTeaching godoc
// @Summary List course instances taught by the caller
// @Tags Courses
// @Produce json
// @Param semesterId query string false "Limit to one semester"
// @Success 200 {object} response.Envelope
// @Router /courses/teaching [get]
func (h *CourseHandler) ListTeaching(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.lifecycle.ListTeaching(c.Request.Context(), identity, c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Roster godoc
// @Summary List the roster of a course instance
// @Tags Courses
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/roster [get]
func (h *CourseHandler) Roster(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	roster, err := h.lifecycle.Roster(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ReplaceSchedules godoc
// @Summary Rebuild the weekly schedule of a course instance
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course instance ID"
// @Param payload body []service.ScheduleSlotRequest true "Schedule slots"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/schedules [put]
func (h *CourseHandler) ReplaceSchedules(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var slots []service.ScheduleSlotRequest
	if err := c.ShouldBindJSON(&slots); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lifecycle.ReplaceSchedules(c.Request.Context(), identity, c.Param("id"), slots); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "updated"}, nil)
}

func queryInt(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return value
}
