package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-suite/course-select-api/internal/models"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
	"github.com/campus-suite/course-select-api/pkg/jobs"
)

type gradeStore interface {
	Upsert(ctx context.Context, grade *models.Grade) error
	ListByInstance(ctx context.Context, instanceID string) ([]models.GradeDetail, error)
	ListPublishedByStudent(ctx context.Context, studentID string) ([]models.PublishedGrade, error)
	TotalsByInstance(ctx context.Context, instanceID string) ([]float64, error)
}

type gradeInstanceReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseInstance, error)
	IsSelected(ctx context.Context, instanceID, studentID string) (bool, error)
}

type rankingQueue interface {
	Enqueue(job jobs.Job) error
}

// SetGradeRequest carries one grade entry. Attempt defaults to the first
// sitting when omitted.
type SetGradeRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	Attempt    int     `json:"attempt" validate:"omitempty,min=1,max=3"`
	DailyScore float64 `json:"daily_score" validate:"min=0,max=100"`
	FinalScore float64 `json:"final_score" validate:"min=0,max=100"`
}

// BulkGradeError reports one failed entry of a bulk grade upload.
type BulkGradeError struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id"`
	Message   string `json:"message"`
}

// GradeService owns grade recording, the student-facing grade reads and the
// per-course dense ranking computation.
type GradeService struct {
	grades    gradeStore
	instances gradeInstanceReader
	cache     *CacheService
	queue     rankingQueue
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService. The queue is optional; without it
// ranking caches are only filled on demand.
func NewGradeService(grades gradeStore, instances gradeInstanceReader, cache *CacheService, queue rankingQueue, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &GradeService{
		grades:    grades,
		instances: instances,
		cache:     cache,
		queue:     queue,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// AttachQueue wires the warm-up queue after construction. The queue's handler
// calls back into this service, so it cannot exist before the service does.
func (s *GradeService) AttachQueue(queue rankingQueue) {
	s.queue = queue
}

// SetGrade records or updates one grade entry. The caller must teach the
// course or be an admin, and the student must hold a seat on the roster.
func (s *GradeService) SetGrade(ctx context.Context, identity models.Identity, instanceID string, req SetGradeRequest) (*models.Grade, error) {
	instance, err := s.loadOwned(ctx, identity, instanceID)
	if err != nil {
		return nil, err
	}
	grade, err := s.applyEntry(ctx, instance, req)
	if err != nil {
		return nil, err
	}
	s.InvalidateStudents(ctx, []string{req.StudentID})
	return grade, nil
}

// BulkSetGrades records many entries at once, collecting per-entry failures
// instead of aborting the batch. The returned slice holds the entries that
// were persisted.
func (s *GradeService) BulkSetGrades(ctx context.Context, identity models.Identity, instanceID string, entries []SetGradeRequest) ([]models.Grade, []BulkGradeError, error) {
	instance, err := s.loadOwned(ctx, identity, instanceID)
	if err != nil {
		return nil, nil, err
	}
	var saved []models.Grade
	var failures []BulkGradeError
	var touched []string
	for i, entry := range entries {
		grade, err := s.applyEntry(ctx, instance, entry)
		if err != nil {
			failures = append(failures, BulkGradeError{
				Index:     i,
				StudentID: entry.StudentID,
				Message:   appErrors.FromError(err).Message,
			})
			continue
		}
		saved = append(saved, *grade)
		touched = append(touched, entry.StudentID)
	}
	s.InvalidateStudents(ctx, touched)
	return saved, failures, nil
}

// GradeSheet returns every grade entry of an instance for its teacher or an
// admin.
func (s *GradeService) GradeSheet(ctx context.Context, identity models.Identity, instanceID string) ([]models.GradeDetail, error) {
	if _, err := s.loadOwned(ctx, identity, instanceID); err != nil {
		return nil, err
	}
	grades, err := s.grades.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// MyGrades returns the caller's grades across published instances.
func (s *GradeService) MyGrades(ctx context.Context, studentID string) ([]models.PublishedGrade, error) {
	grades, err := s.grades.ListPublishedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// MyRankings returns the caller's dense rank per published course instance,
// served from cache when warm.
func (s *GradeService) MyRankings(ctx context.Context, studentID string) ([]models.CourseRanking, error) {
	key := rankingsCacheKey(studentID)
	var cached []models.CourseRanking
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}
	rankings, err := s.computeRankings(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rankings, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache rankings", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return rankings, nil
}

// InvalidateStudents drops the cached rankings of the given students.
func (s *GradeService) InvalidateStudents(ctx context.Context, studentIDs []string) {
	if s.cache == nil {
		return
	}
	for _, id := range studentIDs {
		if err := s.cache.Invalidate(ctx, rankingsCacheKey(id)); err != nil {
			s.logger.Warn("failed to invalidate rankings cache", zap.String("student_id", id), zap.Error(err))
		}
	}
}

// WarmStudents schedules background recomputation of the given students'
// ranking caches.
func (s *GradeService) WarmStudents(studentIDs []string) {
	if s.queue == nil {
		return
	}
	for _, id := range studentIDs {
		if err := s.queue.Enqueue(jobs.Job{ID: id, Type: "rankings-warmup"}); err != nil {
			s.logger.Warn("failed to enqueue rankings warmup", zap.String("student_id", id), zap.Error(err))
		}
	}
}

func (s *GradeService) applyEntry(ctx context.Context, instance *models.CourseInstance, req SetGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if instance.DailyWeight+instance.FinalWeight != 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeightSum, "stored weights do not sum to 100")
	}
	attempt := req.Attempt
	if attempt == 0 {
		attempt = models.AttemptFirst
	}
	selected, err := s.instances.IsSelected(ctx, instance.ID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check selection")
	}
	if !selected {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student not on roster")
	}
	grade := &models.Grade{
		CourseInstanceID: instance.ID,
		StudentID:        req.StudentID,
		Attempt:          attempt,
		DailyScore:       req.DailyScore,
		FinalScore:       req.FinalScore,
		TotalScore:       TotalScore(req.DailyScore, req.FinalScore, instance.DailyWeight, instance.FinalWeight),
	}
	if err := s.grades.Upsert(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}
	return grade, nil
}

func (s *GradeService) computeRankings(ctx context.Context, studentID string) ([]models.CourseRanking, error) {
	grades, err := s.grades.ListPublishedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	rankings := make([]models.CourseRanking, 0, len(grades))
	totalsByInstance := make(map[string][]float64)
	for _, grade := range grades {
		totals, ok := totalsByInstance[grade.CourseInstanceID]
		if !ok {
			totals, err = s.grades.TotalsByInstance(ctx, grade.CourseInstanceID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list totals")
			}
			totalsByInstance[grade.CourseInstanceID] = totals
		}
		rankings = append(rankings, models.CourseRanking{
			CourseInstanceID: grade.CourseInstanceID,
			CourseName:       grade.CourseName,
			SemesterName:     grade.SemesterName,
			Attempt:          grade.Attempt,
			DailyScore:       grade.DailyScore,
			FinalScore:       grade.FinalScore,
			TotalScore:       grade.TotalScore,
			Rank:             DenseRank(grade.TotalScore, totals),
		})
	}
	return rankings, nil
}

func (s *GradeService) loadOwned(ctx context.Context, identity models.Identity, instanceID string) (*models.CourseInstance, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course instance")
	}
	if !identity.IsAdmin() && instance.TeacherID != identity.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the teacher of this course")
	}
	return instance, nil
}

// TotalScore applies the weight split to the component scores, rounded to two
// decimals. Halves round away from zero, the same rule Postgres ROUND applies
// in the recompute query.
func TotalScore(daily, final float64, dailyWeight, finalWeight int) float64 {
	total := daily*float64(dailyWeight)/100 + final*float64(finalWeight)/100
	return math.Round(total*100) / 100
}

// DenseRank returns 1 plus the number of distinct totals strictly greater
// than the given one, so equal totals share a rank and no rank is skipped.
func DenseRank(total float64, totals []float64) int {
	higher := make(map[float64]struct{})
	for _, t := range totals {
		if t > total {
			higher[t] = struct{}{}
		}
	}
	return 1 + len(higher)
}

func rankingsCacheKey(studentID string) string {
	return fmt.Sprintf("rankings:student:%s", studentID)
}

// RankingsWarmer bridges warm-up queue jobs to GradeService.
type RankingsWarmer struct {
	grades *GradeService
	logger *zap.Logger
}

// NewRankingsWarmer constructs a warmer.
func NewRankingsWarmer(grades *GradeService, logger *zap.Logger) *RankingsWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingsWarmer{grades: grades, logger: logger}
}

// Handle recomputes and caches the rankings of the student named by the job.
func (w *RankingsWarmer) Handle(ctx context.Context, job jobs.Job) error {
	if _, err := w.grades.MyRankings(ctx, job.ID); err != nil {
		return err
	}
	w.logger.Debug("rankings warmed", zap.String("student_id", job.ID))
	return nil
}
