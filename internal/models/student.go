package models

import "time"

// Student carries the identity and eligibility context the selection core
// needs. Profile administration lives outside this service.
type Student struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	ClassID      string    `db:"class_id" json:"class_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	GradeLevel   int       `db:"grade_level" json:"grade_level"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
