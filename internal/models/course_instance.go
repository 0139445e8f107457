package models

import "time"

// CourseInstance is one scheduled offering of a course prototype within a
// semester. The selection core mutates its roster, its finalized flag and its
// grade publication flag; everything else is set up by catalog administration.
type CourseInstance struct {
	ID                string    `db:"id" json:"id"`
	PrototypeName     string    `db:"prototype_name" json:"prototype_name"`
	SemesterID        string    `db:"semester_id" json:"semester_id"`
	TeacherID         string    `db:"teacher_id" json:"teacher_id"`
	Location          string    `db:"location" json:"location"`
	Capacity          int       `db:"capacity" json:"capacity"`
	SelectionDeadline time.Time `db:"selection_deadline" json:"selection_deadline"`
	DailyWeight       int       `db:"daily_weight" json:"daily_weight"`
	FinalWeight       int       `db:"final_weight" json:"final_weight"`
	IsFinalized       bool      `db:"is_finalized" json:"is_finalized"`
	IsGradesPublished bool      `db:"is_grades_published" json:"is_grades_published"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SelectionOpen reports whether the instance still accepts enroll/drop calls
// at the given instant.
func (ci *CourseInstance) SelectionOpen(now time.Time) bool {
	return !ci.IsFinalized && !now.After(ci.SelectionDeadline)
}

// CourseInstanceDetail enriches CourseInstance with semester context and the
// current roster size.
type CourseInstanceDetail struct {
	CourseInstance
	SemesterName  string           `db:"semester_name" json:"semester_name"`
	SelectedCount int              `db:"selected_count" json:"selected_count"`
	Schedules     []CourseSchedule `json:"schedules,omitempty"`
}

// CourseSelection is the roster relation between a student and a course
// instance. Created and removed only through the enrollment service.
type CourseSelection struct {
	ID               string    `db:"id" json:"id"`
	CourseInstanceID string    `db:"course_instance_id" json:"course_instance_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	EnrolledAt       time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// RosterEntry is a roster row with student context for teacher views.
type RosterEntry struct {
	CourseSelection
	StudentName string `db:"student_name" json:"student_name"`
	ClassID     string `db:"class_id" json:"class_id"`
}
