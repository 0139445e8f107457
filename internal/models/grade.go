package models

import "time"

// Grade attempt ordinals. An attempt is one sitting of the assessment for a
// given student and course instance.
const (
	AttemptFirst   = 1
	AttemptRetake  = 2
	AttemptRestudy = 3
)

// Grade stores the weighted scores of one student for one course instance and
// attempt. TotalScore is derived from the instance weights on every write and
// never accepted from callers. Rows are superseded by new attempts, never
// deleted.
type Grade struct {
	ID               string    `db:"id" json:"id"`
	CourseInstanceID string    `db:"course_instance_id" json:"course_instance_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	Attempt          int       `db:"attempt" json:"attempt"`
	DailyScore       float64   `db:"daily_score" json:"daily_score"`
	FinalScore       float64   `db:"final_score" json:"final_score"`
	TotalScore       float64   `db:"total_score" json:"total_score"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail enriches Grade with student context for teacher grade sheets.
type GradeDetail struct {
	Grade
	StudentName string `db:"student_name" json:"student_name"`
}

// PublishedGrade is a student's grade row joined with its published course
// instance, the shape served by the student-facing grade and ranking reads.
type PublishedGrade struct {
	Grade
	CourseName   string `db:"course_name" json:"course_name"`
	SemesterName string `db:"semester_name" json:"semester_name"`
}

// CourseRanking pairs a published grade with the dense rank of its total
// score among all students of the same course instance.
type CourseRanking struct {
	CourseInstanceID string  `json:"course_instance_id"`
	CourseName       string  `json:"course_name"`
	SemesterName     string  `json:"semester_name"`
	Attempt          int     `json:"attempt"`
	DailyScore       float64 `json:"daily_score"`
	FinalScore       float64 `json:"final_score"`
	TotalScore       float64 `json:"total_score"`
	Rank             int     `json:"rank"`
}
