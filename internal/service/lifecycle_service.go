package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-suite/course-select-api/internal/models"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
)

type lifecycleInstanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseInstance, error)
	ListByTeacher(ctx context.Context, teacherID, semesterID string) ([]models.CourseInstanceDetail, error)
	SetFinalized(ctx context.Context, instanceID string, finalized bool) error
	SetGradesPublished(ctx context.Context, instanceID string, published bool) error
	UpdateWeights(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error
	ClearSelections(ctx context.Context, instanceID string) error
	Roster(ctx context.Context, instanceID string) ([]models.RosterEntry, error)
}

type lifecycleGradeRepository interface {
	ExistsForInstance(ctx context.Context, instanceID string) (bool, error)
	RecomputeTotals(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error
}

type scheduleWriter interface {
	ReplaceForInstance(ctx context.Context, instanceID string, schedules []models.CourseSchedule) error
}

// rankingsNotifier lets lifecycle transitions drop stale ranking caches and
// pre-warm fresh ones without depending on the grade service directly.
type rankingsNotifier interface {
	InvalidateStudents(ctx context.Context, studentIDs []string)
	WarmStudents(studentIDs []string)
}

// GradeWeightsRequest carries a weight update for a course instance.
type GradeWeightsRequest struct {
	DailyWeight int `json:"daily_weight" validate:"min=0,max=100"`
	FinalWeight int `json:"final_weight" validate:"min=0,max=100"`
}

// ScheduleSlotRequest describes one weekly slot when rebuilding an instance's
// schedule.
type ScheduleSlotRequest struct {
	DayOfWeek      int   `json:"day_of_week" validate:"min=1,max=5"`
	Period         int   `json:"period" validate:"min=1,max=8"`
	StartWeek      int   `json:"start_week" validate:"min=1"`
	EndWeek        int   `json:"end_week" validate:"min=1"`
	WeekInterval   int   `json:"week_interval" validate:"omitempty,min=1"`
	ExceptionWeeks []int `json:"exception_weeks"`
}

// LifecycleService drives the selection state machine of a course instance
// and the teacher-facing administration around it.
type LifecycleService struct {
	instances lifecycleInstanceRepository
	grades    lifecycleGradeRepository
	schedules scheduleWriter
	rankings  rankingsNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleService constructs LifecycleService.
func NewLifecycleService(instances lifecycleInstanceRepository, grades lifecycleGradeRepository, schedules scheduleWriter, rankings rankingsNotifier, validate *validator.Validate, logger *zap.Logger) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		instances: instances,
		grades:    grades,
		schedules: schedules,
		rankings:  rankings,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartSelection reopens selection for an instance and clears its roster.
// Refused once the instance is finalized, past its deadline, or has recorded
// grades.
func (s *LifecycleService) StartSelection(ctx context.Context, identity models.Identity, instanceID string) error {
	if !identity.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	instance, err := s.load(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.IsFinalized {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "selection has been finalized")
	}
	if s.now().After(instance.SelectionDeadline) {
		return appErrors.ErrDeadlinePassed
	}
	graded, err := s.grades.ExistsForInstance(ctx, instanceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grades")
	}
	if graded {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "grades already recorded for this course")
	}
	if err := s.instances.ClearSelections(ctx, instanceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear selections")
	}
	s.logger.Info("selection restarted", zap.String("course_instance_id", instanceID))
	return nil
}

// FinalizeSelection locks the roster of an instance. Allowed only after the
// selection deadline and only once.
func (s *LifecycleService) FinalizeSelection(ctx context.Context, identity models.Identity, instanceID string) error {
	if !identity.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	instance, err := s.load(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.IsFinalized {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "selection already finalized")
	}
	if s.now().Before(instance.SelectionDeadline) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "selection deadline has not passed")
	}
	if err := s.instances.SetFinalized(ctx, instanceID, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize selection")
	}
	s.logger.Info("selection finalized", zap.String("course_instance_id", instanceID))
	return nil
}

// PublishGrades makes the instance's grades visible to students and warms
// their ranking caches in the background.
func (s *LifecycleService) PublishGrades(ctx context.Context, identity models.Identity, instanceID string) error {
	instance, err := s.loadOwned(ctx, identity, instanceID)
	if err != nil {
		return err
	}
	if !instance.IsFinalized {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "selection has not been finalized")
	}
	if instance.IsGradesPublished {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "grades already published")
	}
	graded, err := s.grades.ExistsForInstance(ctx, instanceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grades")
	}
	if !graded {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "no grades recorded for this course")
	}
	if err := s.instances.SetGradesPublished(ctx, instanceID, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish grades")
	}
	s.logger.Info("grades published", zap.String("course_instance_id", instanceID))
	s.notifyRoster(ctx, instanceID, true)
	return nil
}

// WithdrawGrades hides previously published grades again.
func (s *LifecycleService) WithdrawGrades(ctx context.Context, identity models.Identity, instanceID string) error {
	instance, err := s.loadOwned(ctx, identity, instanceID)
	if err != nil {
		return err
	}
	if !instance.IsGradesPublished {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "grades are not published")
	}
	if err := s.instances.SetGradesPublished(ctx, instanceID, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw grades")
	}
	s.logger.Info("grades withdrawn", zap.String("course_instance_id", instanceID))
	s.notifyRoster(ctx, instanceID, false)
	return nil
}

// SetGradeWeights updates the instance's weight split and recomputes every
// stored total so persisted scores stay consistent with the new weights.
func (s *LifecycleService) SetGradeWeights(ctx context.Context, identity models.Identity, instanceID string, req GradeWeightsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weights payload")
	}
	if req.DailyWeight+req.FinalWeight != 100 {
		return appErrors.ErrInvalidWeightSum
	}
	if _, err := s.loadOwned(ctx, identity, instanceID); err != nil {
		return err
	}
	if err := s.instances.UpdateWeights(ctx, instanceID, req.DailyWeight, req.FinalWeight); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update weights")
	}
	if err := s.grades.RecomputeTotals(ctx, instanceID, req.DailyWeight, req.FinalWeight); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute totals")
	}
	s.logger.Info("grade weights updated",
		zap.String("course_instance_id", instanceID),
		zap.Int("daily_weight", req.DailyWeight),
		zap.Int("final_weight", req.FinalWeight))
	s.notifyRoster(ctx, instanceID, false)
	return nil
}

// ReplaceSchedules rebuilds the weekly slots of an instance.
func (s *LifecycleService) ReplaceSchedules(ctx context.Context, identity models.Identity, instanceID string, slots []ScheduleSlotRequest) error {
	if !identity.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if _, err := s.load(ctx, instanceID); err != nil {
		return err
	}
	type slotKey struct {
		day, period, startWeek, interval int
	}
	seen := make(map[slotKey]struct{}, len(slots))
	schedules := make([]models.CourseSchedule, 0, len(slots))
	for _, slot := range slots {
		if err := s.validator.Struct(slot); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule slot")
		}
		if slot.EndWeek < slot.StartWeek {
			return appErrors.Clone(appErrors.ErrValidation, "end week before start week")
		}
		interval := slot.WeekInterval
		if interval < 1 {
			interval = 1
		}
		key := slotKey{slot.DayOfWeek, slot.Period, slot.StartWeek, interval}
		if _, dup := seen[key]; dup {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate schedule slot")
		}
		seen[key] = struct{}{}
		exceptions := make([]int64, len(slot.ExceptionWeeks))
		for i, week := range slot.ExceptionWeeks {
			exceptions[i] = int64(week)
		}
		schedules = append(schedules, models.CourseSchedule{
			DayOfWeek:      slot.DayOfWeek,
			Period:         slot.Period,
			StartWeek:      slot.StartWeek,
			EndWeek:        slot.EndWeek,
			WeekInterval:   interval,
			ExceptionWeeks: exceptions,
		})
	}
	if err := s.schedules.ReplaceForInstance(ctx, instanceID, schedules); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace schedules")
	}
	s.logger.Info("schedules replaced",
		zap.String("course_instance_id", instanceID),
		zap.Int("slots", len(schedules)))
	return nil
}

// Roster returns the roster of an instance to its teacher or an admin.
func (s *LifecycleService) Roster(ctx context.Context, identity models.Identity, instanceID string) ([]models.RosterEntry, error) {
	if _, err := s.loadOwned(ctx, identity, instanceID); err != nil {
		return nil, err
	}
	roster, err := s.instances.Roster(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// ListTeaching returns the instances the caller teaches, optionally limited
// to one semester.
func (s *LifecycleService) ListTeaching(ctx context.Context, identity models.Identity, semesterID string) ([]models.CourseInstanceDetail, error) {
	instances, err := s.instances.ListByTeacher(ctx, identity.UserID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching instances")
	}
	return instances, nil
}

func (s *LifecycleService) load(ctx context.Context, instanceID string) (*models.CourseInstance, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course instance")
	}
	return instance, nil
}

// loadOwned loads the instance and verifies the caller is its teacher or an
// admin.
func (s *LifecycleService) loadOwned(ctx context.Context, identity models.Identity, instanceID string) (*models.CourseInstance, error) {
	instance, err := s.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !identity.IsAdmin() && instance.TeacherID != identity.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the teacher of this course")
	}
	return instance, nil
}

// notifyRoster invalidates the cached rankings of every student on the
// roster, optionally enqueueing background warm-ups.
func (s *LifecycleService) notifyRoster(ctx context.Context, instanceID string, warm bool) {
	if s.rankings == nil {
		return
	}
	roster, err := s.instances.Roster(ctx, instanceID)
	if err != nil {
		s.logger.Warn("failed to load roster for cache invalidation",
			zap.String("course_instance_id", instanceID), zap.Error(err))
		return
	}
	studentIDs := make([]string, len(roster))
	for i, entry := range roster {
		studentIDs[i] = entry.StudentID
	}
	s.rankings.InvalidateStudents(ctx, studentIDs)
	if warm {
		s.rankings.WarmStudents(studentIDs)
	}
}
