// Package exam holds the exam session controller: the availability gate,
// the countdown, the integrity monitor, the answer ledger and the submission finalizer.
package exam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dcict/exam-backend/internal/model"
)

// ErrNoQuestions is a data error: the exam is open but has nothing to answer.
var ErrNoQuestions = errors.New("exam has no questions")

// usable reports whether the schedule is active with both bounds present.
func usable(s model.ExamSchedule) bool {
	return s.IsActive && s.StartTime != nil && s.EndTime != nil
}

// CanEnter reports whether now lies inside the inclusive window [start, end].
func CanEnter(s model.ExamSchedule, now time.Time) bool {
	if !usable(s) {
		return false
	}
	return !now.Before(*s.StartTime) && !now.After(*s.EndTime)
}

// HasEnded reports whether now is strictly after the end of the window.
func HasEnded(s model.ExamSchedule, now time.Time) bool {
	return usable(s) && now.After(*s.EndTime)
}

// HasNotStarted reports whether now is strictly before the start of the window.
func HasNotStarted(s model.ExamSchedule, now time.Time) bool {
	return usable(s) && now.Before(*s.StartTime)
}

// Remaining returns end - now while the exam can be entered, otherwise 0.
func Remaining(s model.ExamSchedule, now time.Time) time.Duration {
	if !CanEnter(s, now) {
		return 0
	}
	return s.EndTime.Sub(now)
}

// RemainingSeconds is Remaining floored to whole seconds.
func RemainingSeconds(s model.ExamSchedule, now time.Time) int64 {
	return wholeSeconds(Remaining(s, now))
}

func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Floor(d.Seconds()))
}

// Status maps the schedule onto its student-facing phase.
func Status(s model.ExamSchedule, now time.Time) model.ScheduleStatus {
	switch {
	case !usable(s):
		return model.ScheduleUnscheduled
	case HasNotStarted(s, now):
		return model.ScheduleUpcoming
	case HasEnded(s, now):
		return model.ScheduleEnded
	default:
		return model.ScheduleOpen
	}
}

// FormatClock renders whole seconds as MM:SS. Minutes are not capped at 59.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ─── Admission ──────────────────────────────────────────────────────

// DenyReason explains why a student was not admitted.
type DenyReason string

const (
	DenyUnauthenticated  DenyReason = "unauthenticated"
	DenyNotStudent       DenyReason = "not_student"
	DenyNotStarted       DenyReason = "not_started"
	DenyEnded            DenyReason = "ended"
	DenyUnscheduled      DenyReason = "unscheduled"
	DenyAlreadySubmitted DenyReason = "already_submitted"
)

// ScheduleReader exposes the current exam window.
type ScheduleReader interface {
	Get() model.ExamSchedule
}

// QuestionSource provides the shared question set.
type QuestionSource interface {
	AllQuestions(ctx context.Context) ([]model.Question, error)
}

// SubmissionLookup finds a student's existing submission.
// Implementations return model.ErrSubmissionNotFound when there is none.
type SubmissionLookup interface {
	GetByStudent(ctx context.Context, studentID int) (*model.Submission, error)
}

// Admission is the outcome of an entry attempt.
// A denied admission carries the path the student is redirected to.
// A blocked admission means the exam exists but its data is unusable.
type Admission struct {
	Allowed   bool
	Reason    DenyReason
	Redirect  string
	Blocked   error
	Schedule  model.ExamSchedule
	Questions []model.Question
}

// Gate decides whether an identity may enter the exam right now.
type Gate struct {
	schedule      ScheduleReader
	questions     QuestionSource
	submissions   SubmissionLookup
	loginPath     string
	dashboardPath string
	now           func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the gate's time source.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithRedirects sets the login and dashboard paths used for denials.
func WithRedirects(loginPath, dashboardPath string) GateOption {
	return func(g *Gate) {
		g.loginPath = loginPath
		g.dashboardPath = dashboardPath
	}
}

// NewGate creates a Gate.
func NewGate(schedule ScheduleReader, questions QuestionSource, submissions SubmissionLookup, opts ...GateOption) *Gate {
	g := &Gate{
		schedule:      schedule,
		questions:     questions,
		submissions:   submissions,
		loginPath:     "/login",
		dashboardPath: "/student/dashboard",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit evaluates the entry rules in order: identity, role, schedule, prior submission,
// then question availability. Denials are returned as decisions; only infrastructure
// failures are returned as errors.
func (g *Gate) Admit(ctx context.Context, id *model.Identity) (Admission, error) {
	if id == nil || id.ID <= 0 {
		return g.deny(DenyUnauthenticated, g.loginPath), nil
	}
	if id.Role != model.RoleStudent {
		return g.deny(DenyNotStudent, g.dashboardPath), nil
	}

	sched := g.schedule.Get()
	if err := sched.Validate(); err != nil {
		return Admission{Blocked: err, Schedule: sched}, nil
	}

	now := g.now()
	if !CanEnter(sched, now) {
		reason := DenyUnscheduled
		switch {
		case HasNotStarted(sched, now):
			reason = DenyNotStarted
		case HasEnded(sched, now):
			reason = DenyEnded
		}
		a := g.deny(reason, g.dashboardPath)
		a.Schedule = sched
		return a, nil
	}

	_, err := g.submissions.GetByStudent(ctx, id.ID)
	switch {
	case err == nil:
		a := g.deny(DenyAlreadySubmitted, g.dashboardPath)
		a.Schedule = sched
		return a, nil
	case !errors.Is(err, model.ErrSubmissionNotFound):
		return Admission{}, fmt.Errorf("lookup submission: %w", err)
	}

	questions, err := g.questions.AllQuestions(ctx)
	if err != nil {
		return Admission{}, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return Admission{Blocked: ErrNoQuestions, Schedule: sched}, nil
	}

	return Admission{Allowed: true, Schedule: sched, Questions: questions}, nil
}

func (g *Gate) deny(reason DenyReason, redirect string) Admission {
	return Admission{Reason: reason, Redirect: redirect}
}
