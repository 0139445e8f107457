package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-suite/course-select-api/internal/models"
	appErrors "github.com/campus-suite/course-select-api/pkg/errors"
)

type mockGradeStore struct {
	upserts   []models.Grade
	published []models.PublishedGrade
	totals    map[string][]float64
}

func (m *mockGradeStore) Upsert(ctx context.Context, grade *models.Grade) error {
	m.upserts = append(m.upserts, *grade)
	return nil
}

func (m *mockGradeStore) ListByInstance(ctx context.Context, instanceID string) ([]models.GradeDetail, error) {
	var list []models.GradeDetail
	for _, g := range m.upserts {
		if g.CourseInstanceID == instanceID {
			list = append(list, models.GradeDetail{Grade: g})
		}
	}
	return list, nil
}

func (m *mockGradeStore) ListPublishedByStudent(ctx context.Context, studentID string) ([]models.PublishedGrade, error) {
	var list []models.PublishedGrade
	for _, g := range m.published {
		if g.StudentID == studentID {
			list = append(list, g)
		}
	}
	return list, nil
}

func (m *mockGradeStore) TotalsByInstance(ctx context.Context, instanceID string) ([]float64, error) {
	return m.totals[instanceID], nil
}

type mockGradeInstanceReader struct {
	instances map[string]models.CourseInstance
	selected  map[string]map[string]bool
}

func (m *mockGradeInstanceReader) FindByID(ctx context.Context, id string) (*models.CourseInstance, error) {
	if ci, ok := m.instances[id]; ok {
		return &ci, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeInstanceReader) IsSelected(ctx context.Context, instanceID, studentID string) (bool, error) {
	return m.selected[instanceID][studentID], nil
}

type fakeCacheRepo struct {
	values map[string][]byte
	sets   int
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.sets++
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(f.values, pattern)
	return nil
}

func newGradeFixture() (*GradeService, *mockGradeStore, *mockGradeInstanceReader) {
	grades := &mockGradeStore{totals: make(map[string][]float64)}
	instances := &mockGradeInstanceReader{
		instances: map[string]models.CourseInstance{
			"ci-1": {ID: "ci-1", TeacherID: "t-1", DailyWeight: 40, FinalWeight: 60, IsFinalized: true},
		},
		selected: map[string]map[string]bool{"ci-1": {"s-1": true, "s-2": true}},
	}
	svc := NewGradeService(grades, instances, nil, nil, time.Minute, validator.New(), zap.NewNop())
	return svc, grades, instances
}

func TestTotalScore(t *testing.T) {
	assert.InDelta(t, 76.0, TotalScore(70, 80, 40, 60), 0.001)
	assert.InDelta(t, 87.88, TotalScore(85.5, 90.25, 50, 50), 0.001)
	assert.InDelta(t, 100.0, TotalScore(100, 100, 30, 70), 0.001)
	// Halves round away from zero, as the SQL recompute does.
	assert.InDelta(t, 0.13, TotalScore(0.25, 0, 50, 50), 0.001)
}

func TestDenseRank(t *testing.T) {
	totals := []float64{90, 80, 80, 70}

	assert.Equal(t, 1, DenseRank(90, totals))
	assert.Equal(t, 2, DenseRank(80, totals))
	assert.Equal(t, 3, DenseRank(70, totals))
}

func TestGradeServiceSetGrade(t *testing.T) {
	svc, grades, _ := newGradeFixture()

	grade, err := svc.SetGrade(context.Background(), teacherIdentity, "ci-1", SetGradeRequest{
		StudentID:  "s-1",
		DailyScore: 70,
		FinalScore: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttemptFirst, grade.Attempt)
	assert.InDelta(t, 76.0, grade.TotalScore, 0.001)
	require.Len(t, grades.upserts, 1)
}

func TestGradeServiceSetGradeNotOwner(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.SetGrade(context.Background(), otherTeacher, "ci-1", SetGradeRequest{
		StudentID:  "s-1",
		DailyScore: 70,
		FinalScore: 80,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceSetGradeAdminAllowed(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.SetGrade(context.Background(), adminIdentity, "ci-1", SetGradeRequest{
		StudentID:  "s-1",
		DailyScore: 70,
		FinalScore: 80,
	})
	require.NoError(t, err)
}

func TestGradeServiceSetGradeNotOnRoster(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.SetGrade(context.Background(), teacherIdentity, "ci-1", SetGradeRequest{
		StudentID:  "s-9",
		DailyScore: 70,
		FinalScore: 80,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceSetGradeBadStoredWeights(t *testing.T) {
	svc, grades, instances := newGradeFixture()
	instances.instances["ci-2"] = models.CourseInstance{ID: "ci-2", TeacherID: "t-1", DailyWeight: 70, FinalWeight: 40, IsFinalized: true}
	instances.selected["ci-2"] = map[string]bool{"s-1": true}

	_, err := svc.SetGrade(context.Background(), teacherIdentity, "ci-2", SetGradeRequest{
		StudentID:  "s-1",
		DailyScore: 70,
		FinalScore: 80,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidWeightSum.Code, appErrors.FromError(err).Code)
	assert.Empty(t, grades.upserts)
}

func TestGradeServiceBulkSetGradesPartialFailure(t *testing.T) {
	svc, grades, _ := newGradeFixture()

	saved, failures, err := svc.BulkSetGrades(context.Background(), teacherIdentity, "ci-1", []SetGradeRequest{
		{StudentID: "s-1", DailyScore: 90, FinalScore: 85},
		{StudentID: "s-9", DailyScore: 80, FinalScore: 70},
		{StudentID: "s-2", DailyScore: 120, FinalScore: 70},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, "s-9", failures[0].StudentID)
	assert.Equal(t, 2, failures[1].Index)
	require.Len(t, grades.upserts, 1)
}

func TestGradeServiceMyRankings(t *testing.T) {
	svc, grades, _ := newGradeFixture()
	grades.published = []models.PublishedGrade{
		{Grade: models.Grade{CourseInstanceID: "ci-1", StudentID: "s-1", Attempt: 1, TotalScore: 80}, CourseName: "Algorithms", SemesterName: "2026 Spring"},
		{Grade: models.Grade{CourseInstanceID: "ci-2", StudentID: "s-1", Attempt: 1, TotalScore: 90}, CourseName: "Databases", SemesterName: "2026 Spring"},
	}
	grades.totals["ci-1"] = []float64{90, 80, 80}
	grades.totals["ci-2"] = []float64{90, 85}

	rankings, err := svc.MyRankings(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, 2, rankings[0].Rank, "shares second place behind the single higher total")
	assert.Equal(t, 1, rankings[1].Rank)
}

func TestGradeServiceMyRankingsCachesResult(t *testing.T) {
	svc, grades, _ := newGradeFixture()
	repo := &fakeCacheRepo{values: make(map[string][]byte)}
	svc.cache = NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	grades.published = []models.PublishedGrade{
		{Grade: models.Grade{CourseInstanceID: "ci-1", StudentID: "s-1", TotalScore: 76}},
	}
	grades.totals["ci-1"] = []float64{76}

	_, err := svc.MyRankings(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.sets)
}

func TestGradeServiceUnpublishedExcluded(t *testing.T) {
	svc, grades, _ := newGradeFixture()
	// ListPublishedByStudent only ever yields published rows, so an empty
	// store must produce an empty ranking list, not an error.
	_ = grades

	rankings, err := svc.MyRankings(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, rankings)
}
