package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/campus-suite/course-select-api/internal/models"
)

// SemesterRepository reads semester records. Semesters are administered
// elsewhere; the selection core only consumes them.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, academic_year, start_date, end_date, current_week, is_current, created_at, updated_at
        FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindCurrent returns the semester flagged as current.
func (r *SemesterRepository) FindCurrent(ctx context.Context) (*models.Semester, error) {
	const query = `SELECT id, name, academic_year, start_date, end_date, current_week, is_current, created_at, updated_at
        FROM semesters WHERE is_current = TRUE LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query); err != nil {
		return nil, err
	}
	return &semester, nil
}
