package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-suite/course-select-api/internal/service"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
	"github.com/campus-suite/course-select-api/pkg/response"
)

// GradeHandler exposes grade recording, publication and the student-facing
// grade and ranking reads.
type GradeHandler struct {
	grades    *service.GradeService
	lifecycle *service.LifecycleService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService, lifecycle *service.LifecycleService) *GradeHandler {
	return &GradeHandler{grades: grades, lifecycle: lifecycle}
}

// Set godoc
// @Summary Record one grade entry
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Course instance ID"
// @Param payload body service.SetGradeRequest true "Grade entry"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades [put]
func (h *GradeHandler) Set(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.SetGrade(c.Request.Context(), identity, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// BulkSet godoc
// @Summary Record many grade entries, collecting per-entry failures
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Course instance ID"
// @Param payload body []service.SetGradeRequest true "Grade entries"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Router /courses/{id}/grades/bulk [post]
func (h *GradeHandler) BulkSet(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var entries []service.SetGradeRequest
	if err := c.ShouldBindJSON(&entries); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	saved, failures, err := h.grades.BulkSetGrades(c.Request.Context(), identity, c.Param("id"), entries)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	var meta map[string]interface{}
	if len(failures) > 0 {
		status = http.StatusMultiStatus
		meta = map[string]interface{}{"errors": failures}
	}
	response.JSON(c, status, saved, nil, meta)
}

// Sheet godoc
// @Summary List every grade entry of a course instance
// @Tags Grades
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades [get]
func (h *GradeHandler) Sheet(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grades, err := h.grades.GradeSheet(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// SetWeights godoc
// @Summary Update the grade weight split of a course instance
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Course instance ID"
// @Param payload body service.GradeWeightsRequest true "Weight split"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grade-weights [patch]
func (h *GradeHandler) SetWeights(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GradeWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lifecycle.SetGradeWeights(c.Request.Context(), identity, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "weights updated"}, nil)
}

// Publish godoc
// @Summary Publish the grades of a course instance
// @Tags Grades
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades/publish [post]
func (h *GradeHandler) Publish(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.PublishGrades(c.Request.Context(), identity, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "grades published"}, nil)
}

// Withdraw godoc
// @Summary Withdraw previously published grades
// @Tags Grades
// @Produce json
// @Param id path string true "Course instance ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades/withdraw [post]
func (h *GradeHandler) Withdraw(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.WithdrawGrades(c.Request.Context(), identity, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "grades withdrawn"}, nil)
}

// MyGrades godoc
// @Summary List the caller's published grades
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/grades [get]
func (h *GradeHandler) MyGrades(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grades, err := h.grades.MyGrades(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// MyRankings godoc
// @Summary List the caller's per-course rank among published grades
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/rankings [get]
func (h *GradeHandler) MyRankings(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rankings, err := h.grades.MyRankings(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rankings, nil)
}
