package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newInstanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseInstanceRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newInstanceRepoMock(t)
	defer cleanup()
	repo := NewCourseInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM course_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_selections WHERE course_instance_id = $1")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO course_selections").
		WithArgs(sqlmock.AnyArg(), "ci-1", "stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	selection, err := repo.Enroll(context.Background(), "ci-1", "stu-1")
	require.NoError(t, err)
	require.Equal(t, "ci-1", selection.CourseInstanceID)
	require.Equal(t, "stu-1", selection.StudentID)
	require.NotEmpty(t, selection.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseInstanceRepositoryEnrollCapacityReached(t *testing.T) {
	db, mock, cleanup := newInstanceRepoMock(t)
	defer cleanup()
	repo := NewCourseInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM course_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_selections WHERE course_instance_id = $1")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "ci-1", "stu-1")
	require.ErrorIs(t, err, ErrCapacityReached)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseInstanceRepositoryEnrollDuplicateSeat(t *testing.T) {
	db, mock, cleanup := newInstanceRepoMock(t)
	defer cleanup()
	repo := NewCourseInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM course_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_selections WHERE course_instance_id = $1")).
		WithArgs("ci-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	// ON CONFLICT DO NOTHING swallows the duplicate and reports zero rows.
	mock.ExpectExec("INSERT INTO course_selections").
		WithArgs(sqlmock.AnyArg(), "ci-1", "stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "ci-1", "stu-1")
	require.ErrorIs(t, err, ErrAlreadySelected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseInstanceRepositoryUnenroll(t *testing.T) {
	db, mock, cleanup := newInstanceRepoMock(t)
	defer cleanup()
	repo := NewCourseInstanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_selections WHERE course_instance_id = $1 AND student_id = $2")).
		WithArgs("ci-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Unenroll(context.Background(), "ci-1", "stu-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseInstanceRepositoryUnenrollNotSelected(t *testing.T) {
	db, mock, cleanup := newInstanceRepoMock(t)
	defer cleanup()
	repo := NewCourseInstanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_selections WHERE course_instance_id = $1 AND student_id = $2")).
		WithArgs("ci-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Unenroll(context.Background(), "ci-1", "stu-1")
	require.ErrorIs(t, err, ErrNotSelected)
	require.NoError(t, mock.ExpectationsWereMet())
}
