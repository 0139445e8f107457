package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-suite/course-select-api/internal/models"
)

// ScheduleRepository owns persistence of course schedule slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, course_instance_id, day_of_week, period, start_week, end_week, week_interval, exception_weeks, created_at`

// ListByInstance returns the slots of one course instance.
func (r *ScheduleRepository) ListByInstance(ctx context.Context, instanceID string) ([]models.CourseSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_schedules WHERE course_instance_id = $1
        ORDER BY day_of_week ASC, period ASC`, scheduleColumns)
	var schedules []models.CourseSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, instanceID); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// ListByInstances returns slots for a set of instances keyed by instance ID.
func (r *ScheduleRepository) ListByInstances(ctx context.Context, instanceIDs []string) (map[string][]models.CourseSchedule, error) {
	if len(instanceIDs) == 0 {
		return map[string][]models.CourseSchedule{}, nil
	}
	args := make([]interface{}, len(instanceIDs))
	for i, id := range instanceIDs {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM course_schedules WHERE course_instance_id IN (%s)`,
		scheduleColumns, buildInClause(len(instanceIDs), 0))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch schedules: %w", err)
	}
	defer rows.Close()
	result := make(map[string][]models.CourseSchedule, len(instanceIDs))
	for rows.Next() {
		var schedule models.CourseSchedule
		if err := rows.StructScan(&schedule); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result[schedule.CourseInstanceID] = append(result[schedule.CourseInstanceID], schedule)
	}
	return result, nil
}

// ListByStudentActive returns the slots of every non-finalized instance a
// student has selected within a semester. Used for conflict checks, so
// finalized instances are excluded.
func (r *ScheduleRepository) ListByStudentActive(ctx context.Context, studentID, semesterID string) ([]models.CourseSchedule, error) {
	const query = `SELECT sch.id, sch.course_instance_id, sch.day_of_week, sch.period, sch.start_week, sch.end_week,
        sch.week_interval, sch.exception_weeks, sch.created_at
        FROM course_schedules sch
        JOIN course_selections cs ON cs.course_instance_id = sch.course_instance_id
        JOIN course_instances ci ON ci.id = sch.course_instance_id
        WHERE cs.student_id = $1 AND ci.semester_id = $2 AND ci.is_finalized = FALSE`
	var schedules []models.CourseSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, studentID, semesterID); err != nil {
		return nil, fmt.Errorf("list student schedules: %w", err)
	}
	return schedules, nil
}

// ReplaceForInstance rebuilds the slot set of an instance in one transaction.
func (r *ScheduleRepository) ReplaceForInstance(ctx context.Context, instanceID string, schedules []models.CourseSchedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace schedules: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_schedules WHERE course_instance_id = $1`, instanceID); err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	for i := range schedules {
		schedules[i].CourseInstanceID = instanceID
		if schedules[i].ID == "" {
			schedules[i].ID = uuid.NewString()
		}
		if schedules[i].CreatedAt.IsZero() {
			schedules[i].CreatedAt = time.Now().UTC()
		}
		const insert = `INSERT INTO course_schedules (id, course_instance_id, day_of_week, period, start_week, end_week, week_interval, exception_weeks, created_at)
            VALUES (:id, :course_instance_id, :day_of_week, :period, :start_week, :end_week, :week_interval, :exception_weeks, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insert, schedules[i]); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedules: %w", err)
	}
	return nil
}
