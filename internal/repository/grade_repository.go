package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-suite/course-select-api/internal/models"
)

// GradeRepository owns grade persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `g.id, g.course_instance_id, g.student_id, g.attempt, g.daily_score, g.final_score, g.total_score, g.created_at, g.updated_at`

// Upsert inserts or updates the grade row keyed by student, instance and attempt.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, course_instance_id, student_id, attempt, daily_score, final_score, total_score, created_at, updated_at)
        VALUES (:id, :course_instance_id, :student_id, :attempt, :daily_score, :final_score, :total_score, :created_at, :updated_at)
        ON CONFLICT (course_instance_id, student_id, attempt)
        DO UPDATE SET daily_score = EXCLUDED.daily_score, final_score = EXCLUDED.final_score,
            total_score = EXCLUDED.total_score, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// FindByKey returns the grade row for one student, instance and attempt.
func (r *GradeRepository) FindByKey(ctx context.Context, instanceID, studentID string, attempt int) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g
        WHERE g.course_instance_id = $1 AND g.student_id = $2 AND g.attempt = $3`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, instanceID, studentID, attempt); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByInstance returns the grade sheet of an instance with student names.
func (r *GradeRepository) ListByInstance(ctx context.Context, instanceID string) ([]models.GradeDetail, error) {
	query := fmt.Sprintf(`SELECT %s, st.full_name AS student_name
        FROM grades g
        JOIN students st ON st.id = g.student_id
        WHERE g.course_instance_id = $1
        ORDER BY st.full_name ASC, g.attempt ASC`, gradeColumns)
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, instanceID); err != nil {
		return nil, fmt.Errorf("list instance grades: %w", err)
	}
	return grades, nil
}

// ListPublishedByStudent returns a student's grades across instances whose
// grades are published.
func (r *GradeRepository) ListPublishedByStudent(ctx context.Context, studentID string) ([]models.PublishedGrade, error) {
	query := fmt.Sprintf(`SELECT %s, ci.prototype_name AS course_name, s.name AS semester_name
        FROM grades g
        JOIN course_instances ci ON ci.id = g.course_instance_id
        JOIN semesters s ON s.id = ci.semester_id
        WHERE g.student_id = $1 AND ci.is_grades_published = TRUE
        ORDER BY s.start_date DESC, ci.prototype_name ASC, g.attempt ASC`, gradeColumns)
	var grades []models.PublishedGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list published grades: %w", err)
	}
	return grades, nil
}

// TotalsByInstance returns every total score recorded for an instance,
// the input of ranking computation.
func (r *GradeRepository) TotalsByInstance(ctx context.Context, instanceID string) ([]float64, error) {
	const query = `SELECT total_score FROM grades WHERE course_instance_id = $1`
	var totals []float64
	if err := r.db.SelectContext(ctx, &totals, query, instanceID); err != nil {
		return nil, fmt.Errorf("list instance totals: %w", err)
	}
	return totals, nil
}

// ExistsForInstance reports whether any grade has been recorded for an instance.
func (r *GradeRepository) ExistsForInstance(ctx context.Context, instanceID string) (bool, error) {
	const query = `SELECT 1 FROM grades WHERE course_instance_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, instanceID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check instance grades: %w", err)
	}
	return true, nil
}

// RecomputeTotals rewrites every total score of an instance using the given
// weights. Called after a weight change so stored totals stay consistent.
func (r *GradeRepository) RecomputeTotals(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error {
	const query = `UPDATE grades
        SET total_score = ROUND((daily_score * $2 + final_score * $3) / 100.0, 2), updated_at = NOW()
        WHERE course_instance_id = $1`
	if _, err := r.db.ExecContext(ctx, query, instanceID, dailyWeight, finalWeight); err != nil {
		return fmt.Errorf("recompute totals: %w", err)
	}
	return nil
}
