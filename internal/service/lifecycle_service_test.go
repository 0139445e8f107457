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

type mockLifecycleRepo struct {
	instances map[string]models.CourseInstance
	roster    []models.RosterEntry

	finalized map[string]bool
	published map[string]bool
	weights   map[string][2]int
	cleared   []string
}

func newMockLifecycleRepo(instances map[string]models.CourseInstance) *mockLifecycleRepo {
	return &mockLifecycleRepo{
		instances: instances,
		finalized: make(map[string]bool),
		published: make(map[string]bool),
		weights:   make(map[string][2]int),
	}
}

func (m *mockLifecycleRepo) FindByID(ctx context.Context, id string) (*models.CourseInstance, error) {
	if ci, ok := m.instances[id]; ok {
		return &ci, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLifecycleRepo) ListByTeacher(ctx context.Context, teacherID, semesterID string) ([]models.CourseInstanceDetail, error) {
	var list []models.CourseInstanceDetail
	for _, ci := range m.instances {
		if ci.TeacherID == teacherID {
			list = append(list, models.CourseInstanceDetail{CourseInstance: ci})
		}
	}
	return list, nil
}

func (m *mockLifecycleRepo) SetFinalized(ctx context.Context, instanceID string, finalized bool) error {
	m.finalized[instanceID] = finalized
	ci := m.instances[instanceID]
	ci.IsFinalized = finalized
	m.instances[instanceID] = ci
	return nil
}

func (m *mockLifecycleRepo) SetGradesPublished(ctx context.Context, instanceID string, published bool) error {
	m.published[instanceID] = published
	ci := m.instances[instanceID]
	ci.IsGradesPublished = published
	m.instances[instanceID] = ci
	return nil
}

func (m *mockLifecycleRepo) UpdateWeights(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error {
	m.weights[instanceID] = [2]int{dailyWeight, finalWeight}
	return nil
}

func (m *mockLifecycleRepo) ClearSelections(ctx context.Context, instanceID string) error {
	m.cleared = append(m.cleared, instanceID)
	return nil
}

func (m *mockLifecycleRepo) Roster(ctx context.Context, instanceID string) ([]models.RosterEntry, error) {
	return m.roster, nil
}

type mockLifecycleGrades struct {
	exists     bool
	recomputed [][2]int
}

func (m *mockLifecycleGrades) ExistsForInstance(ctx context.Context, instanceID string) (bool, error) {
	return m.exists, nil
}

func (m *mockLifecycleGrades) RecomputeTotals(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error {
	m.recomputed = append(m.recomputed, [2]int{dailyWeight, finalWeight})
	return nil
}

type mockScheduleWriter struct {
	replaced []models.CourseSchedule
}

func (m *mockScheduleWriter) ReplaceForInstance(ctx context.Context, instanceID string, schedules []models.CourseSchedule) error {
	m.replaced = schedules
	return nil
}

type mockRankingsNotifier struct {
	invalidated []string
	warmed      []string
}

func (m *mockRankingsNotifier) InvalidateStudents(ctx context.Context, studentIDs []string) {
	m.invalidated = append(m.invalidated, studentIDs...)
}

func (m *mockRankingsNotifier) WarmStudents(studentIDs []string) {
	m.warmed = append(m.warmed, studentIDs...)
}

var (
	adminIdentity   = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
	teacherIdentity = models.Identity{UserID: "t-1", Role: models.RoleTeacher}
	otherTeacher    = models.Identity{UserID: "t-2", Role: models.RoleTeacher}
)

func newLifecycleFixture(deadline time.Time) (*LifecycleService, *mockLifecycleRepo, *mockLifecycleGrades, *mockRankingsNotifier) {
	repo := newMockLifecycleRepo(map[string]models.CourseInstance{
		"ci-1": {ID: "ci-1", TeacherID: "t-1", Capacity: 30, SelectionDeadline: deadline, DailyWeight: 50, FinalWeight: 50},
	})
	repo.roster = []models.RosterEntry{
		{CourseSelection: models.CourseSelection{StudentID: "s-1"}},
		{CourseSelection: models.CourseSelection{StudentID: "s-2"}},
	}
	grades := &mockLifecycleGrades{}
	notifier := &mockRankingsNotifier{}
	svc := NewLifecycleService(repo, grades, &mockScheduleWriter{}, notifier, validator.New(), zap.NewNop())
	return svc, repo, grades, notifier
}

func TestLifecycleFinalizeBeforeDeadline(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))

	err := svc.FinalizeSelection(context.Background(), adminIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestLifecycleFinalizeAfterDeadline(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))

	require.NoError(t, svc.FinalizeSelection(context.Background(), adminIdentity, "ci-1"))
	assert.True(t, repo.finalized["ci-1"])

	err := svc.FinalizeSelection(context.Background(), adminIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestLifecycleFinalizeRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))

	err := svc.FinalizeSelection(context.Background(), teacherIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLifecycleStartSelectionClearsRoster(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))

	require.NoError(t, svc.StartSelection(context.Background(), adminIdentity, "ci-1"))
	assert.Contains(t, repo.cleared, "ci-1")
}

func TestLifecycleStartSelectionRejectedWhenGraded(t *testing.T) {
	svc, repo, grades, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))
	grades.exists = true

	err := svc.StartSelection(context.Background(), adminIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.cleared)
}

func TestLifecyclePublishGrades(t *testing.T) {
	svc, repo, grades, notifier := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))
	grades.exists = true
	require.NoError(t, repo.SetFinalized(context.Background(), "ci-1", true))

	require.NoError(t, svc.PublishGrades(context.Background(), teacherIdentity, "ci-1"))
	assert.True(t, repo.published["ci-1"])
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, notifier.invalidated)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, notifier.warmed)
}

func TestLifecyclePublishGradesWithoutGrades(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, repo.SetFinalized(context.Background(), "ci-1", true))

	err := svc.PublishGrades(context.Background(), teacherIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestLifecyclePublishGradesBeforeFinalize(t *testing.T) {
	svc, repo, grades, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))
	grades.exists = true

	err := svc.PublishGrades(context.Background(), teacherIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.published["ci-1"])
}

func TestLifecyclePublishGradesNotOwner(t *testing.T) {
	svc, _, grades, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))
	grades.exists = true

	err := svc.PublishGrades(context.Background(), otherTeacher, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLifecycleWithdrawGradesNotPublished(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))

	err := svc.WithdrawGrades(context.Background(), teacherIdentity, "ci-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestLifecycleWithdrawGradesRoundTrip(t *testing.T) {
	svc, repo, grades, notifier := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))
	grades.exists = true
	require.NoError(t, repo.SetFinalized(context.Background(), "ci-1", true))

	require.NoError(t, svc.PublishGrades(context.Background(), teacherIdentity, "ci-1"))
	notifier.invalidated = nil
	require.NoError(t, svc.WithdrawGrades(context.Background(), teacherIdentity, "ci-1"))
	assert.False(t, repo.instances["ci-1"].IsGradesPublished)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, notifier.invalidated)
}

func TestLifecycleSetGradeWeightsInvalidSum(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))

	err := svc.SetGradeWeights(context.Background(), teacherIdentity, "ci-1", GradeWeightsRequest{DailyWeight: 70, FinalWeight: 40})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidWeightSum.Code, appErrors.FromError(err).Code)
}

func TestLifecycleSetGradeWeightsRecomputes(t *testing.T) {
	svc, repo, grades, _ := newLifecycleFixture(time.Now().UTC().Add(-time.Hour))

	require.NoError(t, svc.SetGradeWeights(context.Background(), teacherIdentity, "ci-1", GradeWeightsRequest{DailyWeight: 30, FinalWeight: 70}))
	assert.Equal(t, [2]int{30, 70}, repo.weights["ci-1"])
	require.Len(t, grades.recomputed, 1)
	assert.Equal(t, [2]int{30, 70}, grades.recomputed[0])
}

func TestLifecycleReplaceSchedulesValidation(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))

	err := svc.ReplaceSchedules(context.Background(), adminIdentity, "ci-1", []ScheduleSlotRequest{
		{DayOfWeek: 6, Period: 1, StartWeek: 1, EndWeek: 16},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.ReplaceSchedules(context.Background(), adminIdentity, "ci-1", []ScheduleSlotRequest{
		{DayOfWeek: 1, Period: 1, StartWeek: 10, EndWeek: 2},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLifecycleReplaceSchedulesDuplicateSlot(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(time.Now().UTC().Add(time.Hour))

	err := svc.ReplaceSchedules(context.Background(), adminIdentity, "ci-1", []ScheduleSlotRequest{
		{DayOfWeek: 1, Period: 1, StartWeek: 1, EndWeek: 16},
		{DayOfWeek: 1, Period: 1, StartWeek: 1, EndWeek: 8, WeekInterval: 1},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
