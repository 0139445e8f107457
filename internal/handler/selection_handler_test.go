package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-suite/course-select-api/internal/middleware"
	"github.com/campus-suite/course-select-api/internal/models"
	"github.com/campus-suite/course-select-api/internal/service"
)

type stubInstanceRepo struct {
	instance models.CourseInstance
	enrolled bool
}

func (s *stubInstanceRepo) FindByID(ctx context.Context, id string) (*models.CourseInstance, error) {
	if id != s.instance.ID {
		return nil, sql.ErrNoRows
	}
	ci := s.instance
	return &ci, nil
}

func (s *stubInstanceRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseInstanceDetail, error) {
	return &models.CourseInstanceDetail{CourseInstance: s.instance}, nil
}

func (s *stubInstanceRepo) ListAvailable(ctx context.Context, semesterID, classID string) ([]models.CourseInstanceDetail, error) {
	return nil, nil
}

func (s *stubInstanceRepo) ListSelectedByStudent(ctx context.Context, studentID, semesterID string) ([]models.CourseInstanceDetail, error) {
	return nil, nil
}

func (s *stubInstanceRepo) CountSelected(ctx context.Context, instanceID string) (int, error) {
	return 0, nil
}

func (s *stubInstanceRepo) IsSelected(ctx context.Context, instanceID, studentID string) (bool, error) {
	return s.enrolled, nil
}

func (s *stubInstanceRepo) IsEligibleClass(ctx context.Context, instanceID, classID string) (bool, error) {
	return true, nil
}

func (s *stubInstanceRepo) Enroll(ctx context.Context, instanceID, studentID string) (*models.CourseSelection, error) {
	s.enrolled = true
	return &models.CourseSelection{ID: "sel-1", CourseInstanceID: instanceID, StudentID: studentID}, nil
}

func (s *stubInstanceRepo) Unenroll(ctx context.Context, instanceID, studentID string) error {
	s.enrolled = false
	return nil
}

type stubScheduleReader struct{}

func (s *stubScheduleReader) ListByInstance(ctx context.Context, instanceID string) ([]models.CourseSchedule, error) {
	return nil, nil
}

func (s *stubScheduleReader) ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.CourseSchedule, error) {
	return map[string][]models.CourseSchedule{}, nil
}

func (s *stubScheduleReader) ListByStudentActive(ctx context.Context, studentID, semesterID string) ([]models.CourseSchedule, error) {
	return nil, nil
}

type stubStudentReader struct{}

func (s *stubStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id, ClassID: "class-a", Active: true}, nil
}

type stubSemesterReader struct{}

func (s *stubSemesterReader) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	return &models.Semester{ID: id}, nil
}

func (s *stubSemesterReader) FindCurrent(ctx context.Context) (*models.Semester, error) {
	return &models.Semester{ID: "sem-1", IsCurrent: true}, nil
}

func newSelectionRouter(instance models.CourseInstance) (*gin.Engine, *stubInstanceRepo) {
	gin.SetMode(gin.TestMode)
	repo := &stubInstanceRepo{instance: instance}
	enrollments := service.NewEnrollmentService(repo, &stubScheduleReader{}, &stubStudentReader{}, &stubSemesterReader{}, nil, zap.NewNop())
	h := NewSelectionHandler(enrollments, nil, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent})
	})
	r.POST("/courses/:id/enroll", h.Enroll)
	return r, repo
}

func TestSelectionHandlerEnroll(t *testing.T) {
	router, repo := newSelectionRouter(models.CourseInstance{
		ID:                "ci-1",
		Capacity:          30,
		SelectionDeadline: time.Now().UTC().Add(time.Hour),
	})

	req := httptest.NewRequest(http.MethodPost, "/courses/ci-1/enroll", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, repo.enrolled)

	var body struct {
		Data models.CourseSelection `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ci-1", body.Data.CourseInstanceID)
	assert.Equal(t, "s-1", body.Data.StudentID)
}

func TestSelectionHandlerEnrollDeadlinePassed(t *testing.T) {
	router, _ := newSelectionRouter(models.CourseInstance{
		ID:                "ci-1",
		Capacity:          30,
		SelectionDeadline: time.Now().UTC().Add(-time.Hour),
	})

	req := httptest.NewRequest(http.MethodPost, "/courses/ci-1/enroll", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DEADLINE_PASSED", body.Error.Code)
}
