package models

import "time"

// Semester is the selection batch: the administrative window during which a
// set of course instances accepts enrollment. It also owns the current-week
// counter consulted by schedule activity checks. The core reads semesters but
// never mutates them.
type Semester struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	CurrentWeek  int       `db:"current_week" json:"current_week"`
	IsCurrent    bool      `db:"is_current" json:"is_current"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
