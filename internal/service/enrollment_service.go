package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-suite/course-select-api/internal/models"
	"github.com/campus-suite/course-select-api/internal/repository"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
)

type instanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseInstance, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseInstanceDetail, error)
	ListAvailable(ctx context.Context, semesterID, classID string) ([]models.CourseInstanceDetail, error)
	ListSelectedByStudent(ctx context.Context, studentID, semesterID string) ([]models.CourseInstanceDetail, error)
	CountSelected(ctx context.Context, instanceID string) (int, error)
	IsSelected(ctx context.Context, instanceID, studentID string) (bool, error)
	IsEligibleClass(ctx context.Context, instanceID, classID string) (bool, error)
	Enroll(ctx context.Context, instanceID, studentID string) (*models.CourseSelection, error)
	Unenroll(ctx context.Context, instanceID, studentID string) error
}

type scheduleReader interface {
	ListByInstance(ctx context.Context, instanceID string) ([]models.CourseSchedule, error)
	ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.CourseSchedule, error)
	ListByStudentActive(ctx context.Context, studentID, semesterID string) ([]models.CourseSchedule, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindCurrent(ctx context.Context) (*models.Semester, error)
}

// EnrollmentService orchestrates the student-facing selection workflow:
// browsing available course instances, claiming a seat and releasing it.
type EnrollmentService struct {
	instances instanceRepository
	schedules scheduleReader
	students  studentReader
	semesters semesterReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(instances instanceRepository, schedules scheduleReader, students studentReader, semesters semesterReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		instances: instances,
		schedules: schedules,
		students:  students,
		semesters: semesters,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListAvailable returns the current-semester instances the student's class is
// eligible for, each with its schedule slots. A positive week narrows the
// slots to those active in that teaching week.
func (s *EnrollmentService) ListAvailable(ctx context.Context, studentID string, week int) ([]models.CourseInstanceDetail, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	semester, err := s.semesters.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}
	instances, err := s.instances.ListAvailable(ctx, semester.ID, student.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available courses")
	}
	if err := s.attachSchedules(ctx, instances, week); err != nil {
		return nil, err
	}
	return instances, nil
}

// ListSelected returns the instances the student has selected. An empty
// semesterID resolves to the current semester.
func (s *EnrollmentService) ListSelected(ctx context.Context, studentID, semesterID string) ([]models.CourseInstanceDetail, error) {
	if semesterID == "" {
		semester, err := s.semesters.FindCurrent(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no current semester")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
		}
		semesterID = semester.ID
	}
	instances, err := s.instances.ListSelectedByStudent(ctx, studentID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list selected courses")
	}
	if err := s.attachSchedules(ctx, instances, 0); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetCourse returns one course instance with schedules. A positive week
// narrows the slots to those active in that teaching week.
func (s *EnrollmentService) GetCourse(ctx context.Context, instanceID string, week int) (*models.CourseInstanceDetail, error) {
	detail, err := s.instances.FindDetailByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course instance")
	}
	schedules, err := s.schedules.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course schedules")
	}
	detail.Schedules = filterWeek(schedules, week)
	return detail, nil
}

// Enroll claims a seat for the student. Guards run cheapest first: deadline,
// capacity snapshot, class eligibility, duplicate seat, schedule conflict.
// The capacity and duplicate guards are re-verified under a row lock inside
// the repository, so concurrent enrollments never oversell a course.
func (s *EnrollmentService) Enroll(ctx context.Context, instanceID, studentID string) (*models.CourseSelection, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsFinalized || s.now().After(instance.SelectionDeadline) {
		return nil, appErrors.ErrDeadlinePassed
	}

	count, err := s.instances.CountSelected(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count selections")
	}
	if count >= instance.Capacity {
		return nil, appErrors.ErrCapacityExceeded
	}

	eligible, err := s.instances.IsEligibleClass(ctx, instanceID, student.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check eligibility")
	}
	if !eligible {
		return nil, appErrors.ErrIneligible
	}

	selected, err := s.instances.IsSelected(ctx, instanceID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check selection")
	}
	if selected {
		return nil, appErrors.ErrDuplicateEnrollment
	}

	candidate, err := s.schedules.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course schedules")
	}
	existing, err := s.schedules.ListByStudentActive(ctx, studentID, instance.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student schedules")
	}
	if models.SchedulesConflict(candidate, existing) {
		return nil, appErrors.ErrScheduleConflict
	}

	selection, err := s.instances.Enroll(ctx, instanceID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityReached):
			return nil, appErrors.ErrCapacityExceeded
		case errors.Is(err, repository.ErrAlreadySelected):
			return nil, appErrors.ErrDuplicateEnrollment
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}
	s.logger.Info("student enrolled",
		zap.String("course_instance_id", instanceID),
		zap.String("student_id", studentID))
	return selection, nil
}

// Drop releases the student's seat. Blocked once the instance is finalized or
// the deadline has passed.
func (s *EnrollmentService) Drop(ctx context.Context, instanceID, studentID string) error {
	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.IsFinalized || s.now().After(instance.SelectionDeadline) {
		return appErrors.ErrDeadlinePassed
	}
	if err := s.instances.Unenroll(ctx, instanceID, studentID); err != nil {
		if errors.Is(err, repository.ErrNotSelected) {
			return appErrors.ErrNotEnrolled
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop course")
	}
	s.logger.Info("student dropped course",
		zap.String("course_instance_id", instanceID),
		zap.String("student_id", studentID))
	return nil
}

func (s *EnrollmentService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student inactive")
	}
	return student, nil
}

func (s *EnrollmentService) loadInstance(ctx context.Context, instanceID string) (*models.CourseInstance, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course instance")
	}
	return instance, nil
}

func (s *EnrollmentService) attachSchedules(ctx context.Context, instances []models.CourseInstanceDetail, week int) error {
	if len(instances) == 0 {
		return nil
	}
	ids := make([]string, len(instances))
	for i := range instances {
		ids[i] = instances[i].ID
	}
	byInstance, err := s.schedules.ListByInstances(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course schedules")
	}
	for i := range instances {
		instances[i].Schedules = filterWeek(byInstance[instances[i].ID], week)
	}
	return nil
}

func filterWeek(schedules []models.CourseSchedule, week int) []models.CourseSchedule {
	if week <= 0 {
		return schedules
	}
	filtered := make([]models.CourseSchedule, 0, len(schedules))
	for _, s := range schedules {
		if s.IsActiveInWeek(week) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
