package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCourseScheduleIsActiveInWeek(t *testing.T) {
	slot := CourseSchedule{DayOfWeek: WeekdayMonday, Period: 1, StartWeek: 3, EndWeek: 15, WeekInterval: 2, ExceptionWeeks: []int64{7}}

	assert.False(t, slot.IsActiveInWeek(2), "before start week")
	assert.True(t, slot.IsActiveInWeek(3))
	assert.False(t, slot.IsActiveInWeek(4), "off-interval week")
	assert.True(t, slot.IsActiveInWeek(5))
	assert.False(t, slot.IsActiveInWeek(7), "exception week")
	assert.True(t, slot.IsActiveInWeek(15))
	assert.False(t, slot.IsActiveInWeek(16), "after end week")
}

func TestCourseScheduleZeroIntervalTreatedAsWeekly(t *testing.T) {
	slot := CourseSchedule{StartWeek: 1, EndWeek: 4}

	for week := 1; week <= 4; week++ {
		assert.True(t, slot.IsActiveInWeek(week))
	}
}

func TestCourseScheduleConflictsWith(t *testing.T) {
	base := CourseSchedule{DayOfWeek: 2, Period: 3, StartWeek: 1, EndWeek: 10, WeekInterval: 1}

	otherDay := base
	otherDay.DayOfWeek = 3
	assert.False(t, base.ConflictsWith(otherDay))

	otherPeriod := base
	otherPeriod.Period = 4
	assert.False(t, base.ConflictsWith(otherPeriod))

	laterWeeks := base
	laterWeeks.StartWeek = 11
	laterWeeks.EndWeek = 20
	assert.False(t, base.ConflictsWith(laterWeeks), "disjoint week ranges")

	overlap := base
	overlap.StartWeek = 10
	overlap.EndWeek = 20
	assert.True(t, base.ConflictsWith(overlap))
}

func TestCourseScheduleInterleavedIntervalsDoNotConflict(t *testing.T) {
	odd := CourseSchedule{DayOfWeek: 1, Period: 1, StartWeek: 1, EndWeek: 16, WeekInterval: 2}
	even := CourseSchedule{DayOfWeek: 1, Period: 1, StartWeek: 2, EndWeek: 16, WeekInterval: 2}

	assert.False(t, odd.ConflictsWith(even))
	assert.False(t, even.ConflictsWith(odd))
}

func TestSchedulesConflict(t *testing.T) {
	a := []CourseSchedule{
		{DayOfWeek: 1, Period: 1, StartWeek: 1, EndWeek: 16, WeekInterval: 1},
		{DayOfWeek: 3, Period: 5, StartWeek: 1, EndWeek: 16, WeekInterval: 1},
	}
	b := []CourseSchedule{
		{DayOfWeek: 2, Period: 1, StartWeek: 1, EndWeek: 16, WeekInterval: 1},
	}
	assert.False(t, SchedulesConflict(a, b))

	b = append(b, CourseSchedule{DayOfWeek: 3, Period: 5, StartWeek: 8, EndWeek: 12, WeekInterval: 1})
	assert.True(t, SchedulesConflict(a, b))
}
