package model

import (
	"errors"
	"time"
)

// ErrScheduleMalformed marks an active schedule without a usable window.
var ErrScheduleMalformed = errors.New("exam schedule is active but its window is malformed")

// ExamSchedule is the single process-wide exam window.
// The zero value is the cleared, inactive schedule.
type ExamSchedule struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	IsActive  bool       `json:"is_active"`
}

// Validate checks that an active schedule has both bounds and start < end.
func (s ExamSchedule) Validate() error {
	if !s.IsActive {
		return nil
	}
	if s.StartTime == nil || s.EndTime == nil || !s.StartTime.Before(*s.EndTime) {
		return ErrScheduleMalformed
	}
	return nil
}

// ScheduleStatus is the student-facing phase of the window.
type ScheduleStatus string

const (
	ScheduleUnscheduled ScheduleStatus = "unscheduled"
	ScheduleUpcoming    ScheduleStatus = "upcoming"
	ScheduleOpen        ScheduleStatus = "open"
	ScheduleEnded       ScheduleStatus = "ended"
)

// UpdateScheduleRequest is the teacher payload for setting the window.
type UpdateScheduleRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
}
