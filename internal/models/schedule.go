package models

import (
	"time"

	"github.com/lib/pq"
)

// Weekday values accepted for course schedules. Teaching happens on a
// five-day week in the upstream timetable.
const (
	WeekdayMonday    = 1
	WeekdayFriday    = 5
	MinPeriod        = 1
	MaxPeriod        = 8
	DefaultWeekCount = 20
)

// CourseSchedule is a recurring weekly slot owned by exactly one course
// instance: a day-of-week and period, active from StartWeek to EndWeek every
// WeekInterval weeks, minus the listed exception weeks. Immutable once
// created except through an explicit rebuild of the instance's schedules.
type CourseSchedule struct {
	ID               string        `db:"id" json:"id"`
	CourseInstanceID string        `db:"course_instance_id" json:"course_instance_id"`
	DayOfWeek        int           `db:"day_of_week" json:"day_of_week"`
	Period           int           `db:"period" json:"period"`
	StartWeek        int           `db:"start_week" json:"start_week"`
	EndWeek          int           `db:"end_week" json:"end_week"`
	WeekInterval     int           `db:"week_interval" json:"week_interval"`
	ExceptionWeeks   pq.Int64Array `db:"exception_weeks" json:"exception_weeks"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// IsActiveInWeek reports whether this slot meets in the given teaching week.
func (s CourseSchedule) IsActiveInWeek(week int) bool {
	if week < s.StartWeek || week > s.EndWeek {
		return false
	}
	interval := s.WeekInterval
	if interval < 1 {
		interval = 1
	}
	if (week-s.StartWeek)%interval != 0 {
		return false
	}
	for _, ex := range s.ExceptionWeeks {
		if int(ex) == week {
			return false
		}
	}
	return true
}

// ConflictsWith reports whether two slots ever claim the same day and period
// in the same week. Slots on different days or periods never conflict; slots
// on the same day and period conflict only if their active-week patterns
// intersect.
func (s CourseSchedule) ConflictsWith(other CourseSchedule) bool {
	if s.DayOfWeek != other.DayOfWeek || s.Period != other.Period {
		return false
	}
	lo := s.StartWeek
	if other.StartWeek > lo {
		lo = other.StartWeek
	}
	hi := s.EndWeek
	if other.EndWeek < hi {
		hi = other.EndWeek
	}
	for week := lo; week <= hi; week++ {
		if s.IsActiveInWeek(week) && other.IsActiveInWeek(week) {
			return true
		}
	}
	return false
}

// SchedulesConflict reports whether any slot in a conflicts with any slot in b.
func SchedulesConflict(a, b []CourseSchedule) bool {
	for _, sa := range a {
		for _, sb := range b {
			if sa.ConflictsWith(sb) {
				return true
			}
		}
	}
	return false
}
