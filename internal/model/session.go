package model

import "time"

// SessionState is the student-visible state of an exam session.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateActive     SessionState = "active"
	StateBlocked    SessionState = "blocked"
	StateErrorRetry SessionState = "error_retry"
	StateDone       SessionState = "done"
)

// ExamEntryResponse is returned when a student is admitted to the exam.
type ExamEntryResponse struct {
	State            SessionState         `json:"state"`
	Questions        []QuestionForStudent `json:"questions"`
	RemainingSeconds int64                `json:"remaining_seconds"`
	RemainingLabel   string               `json:"remaining_label"`
	EndsAt           time.Time            `json:"ends_at"`
	Answers          map[int]Option       `json:"answers"`
	ViolationCount   int                  `json:"violation_count"`
}

// DashboardResponse summarises the exam for a student's landing page.
type DashboardResponse struct {
	Student          Identity           `json:"student"`
	Status           ScheduleStatus     `json:"status"`
	Schedule         ExamSchedule       `json:"schedule"`
	RemainingSeconds int64              `json:"remaining_seconds"`
	RemainingLabel   string             `json:"remaining_label"`
	CanEnter         bool               `json:"can_enter"`
	HasSubmitted     bool               `json:"has_submitted"`
	Submission       *SubmittedOverview `json:"submission,omitempty"`
}

// SubmittedOverview tells a student their exam is in without revealing the score.
type SubmittedOverview struct {
	SubmittedAt    time.Time `json:"submitted_at"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	Answered       int       `json:"answered"`
	TotalQuestions int       `json:"total_questions"`
}

// ActiveSession is one entry in the teacher's live monitor.
type ActiveSession struct {
	StudentID      int       `json:"student_id"`
	StudentName    string    `json:"student_name"`
	ConnectedAt    time.Time `json:"connected_at"`
	Answered       int       `json:"answered"`
	ViolationCount int       `json:"violation_count"`
}

// MonitorEvent is published on the monitor channel.
type MonitorEvent struct {
	Type      string         `json:"type"`
	StudentID int            `json:"student_id"`
	Name      string         `json:"name,omitempty"`
	Kind      ViolationKind  `json:"kind,omitempty"`
	Auto      bool           `json:"auto,omitempty"`
	At        time.Time      `json:"at"`
	Extra     map[string]any `json:"extra,omitempty"`
}
