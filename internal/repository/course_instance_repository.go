package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-suite/course-select-api/internal/models"
)

// Sentinel errors surfaced by the locked enrollment path. The service layer
// maps these onto API error codes.
var (
	ErrCapacityReached = errors.New("course capacity reached")
	ErrAlreadySelected = errors.New("student already selected")
	ErrNotSelected     = errors.New("student not selected")
)

// CourseInstanceRepository owns persistence for course instances and their
// selection roster.
type CourseInstanceRepository struct {
	db *sqlx.DB
}

// NewCourseInstanceRepository constructs the repository.
func NewCourseInstanceRepository(db *sqlx.DB) *CourseInstanceRepository {
	return &CourseInstanceRepository{db: db}
}

const instanceColumns = `ci.id, ci.prototype_name, ci.semester_id, ci.teacher_id, ci.location, ci.capacity,
        ci.selection_deadline, ci.daily_weight, ci.final_weight, ci.is_finalized, ci.is_grades_published,
        ci.created_at, ci.updated_at`

// FindByID returns a course instance by its ID.
func (r *CourseInstanceRepository) FindByID(ctx context.Context, id string) (*models.CourseInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_instances ci WHERE ci.id = $1`, instanceColumns)
	var instance models.CourseInstance
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// FindDetailByID returns a course instance with semester context and roster size.
func (r *CourseInstanceRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseInstanceDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS semester_name,
        (SELECT COUNT(*) FROM course_selections cs WHERE cs.course_instance_id = ci.id) AS selected_count
        FROM course_instances ci
        JOIN semesters s ON s.id = ci.semester_id
        WHERE ci.id = $1`, instanceColumns)
	var detail models.CourseInstanceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListAvailable returns the non-finalized instances of a semester that the
// given class is eligible for, with roster counts.
func (r *CourseInstanceRepository) ListAvailable(ctx context.Context, semesterID, classID string) ([]models.CourseInstanceDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS semester_name,
        (SELECT COUNT(*) FROM course_selections cs WHERE cs.course_instance_id = ci.id) AS selected_count
        FROM course_instances ci
        JOIN semesters s ON s.id = ci.semester_id
        JOIN course_instance_eligible_classes ec ON ec.course_instance_id = ci.id
        WHERE ci.semester_id = $1 AND ec.class_id = $2 AND ci.is_finalized = FALSE
        ORDER BY ci.prototype_name ASC`, instanceColumns)
	var instances []models.CourseInstanceDetail
	if err := r.db.SelectContext(ctx, &instances, query, semesterID, classID); err != nil {
		return nil, fmt.Errorf("list available instances: %w", err)
	}
	return instances, nil
}

// ListSelectedByStudent returns the instances a student has selected within a
// semester. Pass an empty semesterID to span all semesters.
func (r *CourseInstanceRepository) ListSelectedByStudent(ctx context.Context, studentID, semesterID string) ([]models.CourseInstanceDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS semester_name,
        (SELECT COUNT(*) FROM course_selections c2 WHERE c2.course_instance_id = ci.id) AS selected_count
        FROM course_selections cs
        JOIN course_instances ci ON ci.id = cs.course_instance_id
        JOIN semesters s ON s.id = ci.semester_id
        WHERE cs.student_id = $1`, instanceColumns)
	args := []interface{}{studentID}
	if semesterID != "" {
		query += " AND ci.semester_id = $2"
		args = append(args, semesterID)
	}
	query += " ORDER BY cs.enrolled_at ASC"
	var instances []models.CourseInstanceDetail
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("list selected instances: %w", err)
	}
	return instances, nil
}

// CountSelected returns the current roster size of an instance.
func (r *CourseInstanceRepository) CountSelected(ctx context.Context, instanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_selections WHERE course_instance_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, instanceID); err != nil {
		return 0, fmt.Errorf("count selections: %w", err)
	}
	return count, nil
}

// IsSelected reports whether the student currently holds a seat.
func (r *CourseInstanceRepository) IsSelected(ctx context.Context, instanceID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM course_selections WHERE course_instance_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, instanceID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check selection: %w", err)
	}
	return true, nil
}

// IsEligibleClass reports whether the class appears on the instance's
// eligibility list.
func (r *CourseInstanceRepository) IsEligibleClass(ctx context.Context, instanceID, classID string) (bool, error) {
	const query = `SELECT 1 FROM course_instance_eligible_classes WHERE course_instance_id = $1 AND class_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, instanceID, classID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return true, nil
}

// Enroll claims a seat under a row lock on the instance. The instance row is
// locked FOR UPDATE, the roster recounted, and the seat inserted only when
// capacity still holds. Callers must have already verified deadline,
// eligibility and schedule constraints; this method defends capacity and
// uniqueness only.
func (r *CourseInstanceRepository) Enroll(ctx context.Context, instanceID, studentID string) (*models.CourseSelection, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM course_instances WHERE id = $1 FOR UPDATE`, instanceID); err != nil {
		return nil, fmt.Errorf("lock instance: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM course_selections WHERE course_instance_id = $1`, instanceID); err != nil {
		return nil, fmt.Errorf("recount selections: %w", err)
	}
	if count >= capacity {
		return nil, ErrCapacityReached
	}

	selection := models.CourseSelection{
		ID:               uuid.NewString(),
		CourseInstanceID: instanceID,
		StudentID:        studentID,
		EnrolledAt:       time.Now().UTC(),
	}
	const insert = `INSERT INTO course_selections (id, course_instance_id, student_id, enrolled_at)
        VALUES (:id, :course_instance_id, :student_id, :enrolled_at)
        ON CONFLICT (course_instance_id, student_id) DO NOTHING`
	result, err := tx.NamedExecContext(ctx, insert, selection)
	if err != nil {
		return nil, fmt.Errorf("insert selection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("selection rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrAlreadySelected
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll: %w", err)
	}
	return &selection, nil
}

// Unenroll releases the student's seat.
func (r *CourseInstanceRepository) Unenroll(ctx context.Context, instanceID, studentID string) error {
	const query = `DELETE FROM course_selections WHERE course_instance_id = $1 AND student_id = $2`
	result, err := r.db.ExecContext(ctx, query, instanceID, studentID)
	if err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("selection rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotSelected
	}
	return nil
}

// ClearSelections empties the roster, used when selection is restarted.
func (r *CourseInstanceRepository) ClearSelections(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_selections WHERE course_instance_id = $1`, instanceID); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	return nil
}

// Roster returns the roster of an instance with student context.
func (r *CourseInstanceRepository) Roster(ctx context.Context, instanceID string) ([]models.RosterEntry, error) {
	const query = `SELECT cs.id, cs.course_instance_id, cs.student_id, cs.enrolled_at,
        st.full_name AS student_name, st.class_id
        FROM course_selections cs
        JOIN students st ON st.id = cs.student_id
        WHERE cs.course_instance_id = $1
        ORDER BY st.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, instanceID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// SetFinalized flips the finalized flag.
func (r *CourseInstanceRepository) SetFinalized(ctx context.Context, instanceID string, finalized bool) error {
	const query = `UPDATE course_instances SET is_finalized = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, instanceID, finalized); err != nil {
		return fmt.Errorf("update finalized: %w", err)
	}
	return nil
}

// SetGradesPublished flips the grade publication flag.
func (r *CourseInstanceRepository) SetGradesPublished(ctx context.Context, instanceID string, published bool) error {
	const query = `UPDATE course_instances SET is_grades_published = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, instanceID, published); err != nil {
		return fmt.Errorf("update grades published: %w", err)
	}
	return nil
}

// UpdateWeights sets the grade weights of an instance.
func (r *CourseInstanceRepository) UpdateWeights(ctx context.Context, instanceID string, dailyWeight, finalWeight int) error {
	const query = `UPDATE course_instances SET daily_weight = $2, final_weight = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, instanceID, dailyWeight, finalWeight); err != nil {
		return fmt.Errorf("update weights: %w", err)
	}
	return nil
}

// ListByTeacher returns instances owned by a teacher, optionally limited to a semester.
func (r *CourseInstanceRepository) ListByTeacher(ctx context.Context, teacherID, semesterID string) ([]models.CourseInstanceDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS semester_name,
        (SELECT COUNT(*) FROM course_selections cs WHERE cs.course_instance_id = ci.id) AS selected_count
        FROM course_instances ci
        JOIN semesters s ON s.id = ci.semester_id
        WHERE ci.teacher_id = $1`, instanceColumns)
	args := []interface{}{teacherID}
	if semesterID != "" {
		query += " AND ci.semester_id = $2"
		args = append(args, semesterID)
	}
	query += " ORDER BY ci.prototype_name ASC"
	var instances []models.CourseInstanceDetail
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher instances: %w", err)
	}
	return instances, nil
}

// buildInClause renders $n placeholders for an IN list starting at offset+1.
func buildInClause(n, offset int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", offset+i+1)
	}
	return strings.Join(placeholders, ",")
}
