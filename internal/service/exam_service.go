package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

// Entry is the result of a student trying to open the exam.
type Entry struct {
	Admission exam.Admission
	Session   *exam.Session
}

// ExamService wires the gate, the live session registry and the finalizer together
// for the student-facing endpoints.
type ExamService struct {
	cfg         *config.Config
	gate        *exam.Gate
	registry    *exam.Registry
	finalizer   *exam.Finalizer
	schedule    exam.ScheduleReader
	submissions exam.SubmissionLookup
	drafts      draftStore
	journal     *SessionJournal
	log         zerolog.Logger
	now         func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	cfg *config.Config,
	gate *exam.Gate,
	registry *exam.Registry,
	finalizer *exam.Finalizer,
	schedule exam.ScheduleReader,
	submissions exam.SubmissionLookup,
	drafts draftStore,
	journal *SessionJournal,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		cfg:         cfg,
		gate:        gate,
		registry:    registry,
		finalizer:   finalizer,
		schedule:    schedule,
		submissions: submissions,
		drafts:      drafts,
		journal:     journal,
		log:         log.With().Str("component", "exam_service").Logger(),
		now:         time.Now,
	}
}

// Enter runs the gate and, on admission, returns the student's live session,
// starting one (restored from the draft) if none is running.
func (s *ExamService) Enter(ctx context.Context, id model.Identity) (*Entry, error) {
	admission, err := s.gate.Admit(ctx, &id)
	if err != nil {
		return nil, err
	}
	if !admission.Allowed {
		return &Entry{Admission: admission}, nil
	}

	session, created, err := s.start(ctx, id, admission.Questions, *admission.Schedule.EndTime)
	if err != nil {
		return nil, err
	}
	if created {
		s.journal.Joined(ctx, id)
	}
	return &Entry{Admission: admission, Session: session}, nil
}

// Resume rebuilds the session of a student whose draft outlived the previous process.
// The countdown runs toward the current end time. When the window is over, or no
// longer scheduled, it expires on its first tick and the draft is auto-submitted.
func (s *ExamService) Resume(ctx context.Context, id model.Identity, questions []model.Question) (*exam.Session, bool, error) {
	end := s.now()
	if sched := s.schedule.Get(); sched.IsActive && sched.Validate() == nil {
		end = *sched.EndTime
	}
	return s.start(ctx, id, questions, end)
}

func (s *ExamService) start(ctx context.Context, id model.Identity, questions []model.Question, end time.Time) (*exam.Session, bool, error) {
	session, created, err := s.registry.GetOrStart(id.ID, func() (exam.SessionConfig, error) {
		answers, violations, err := s.drafts.Load(ctx, id.ID)
		if err != nil {
			s.log.Warn().Err(err).Int("student_id", id.ID).Msg("Draft unavailable, starting empty")
			answers, violations = nil, nil
		}
		return exam.SessionConfig{
			Identity:   id,
			Questions:  questions,
			EndTime:    end,
			TimeLow:    s.cfg.TimeLowThreshold,
			Finalizer:  s.finalizer,
			Journal:    s.journal,
			Answers:    answers,
			Violations: violations,
			Log:        s.log,
		}, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}
	return session, created, nil
}

// ScheduleChanged carries a later end time into the live sessions.
// An earlier end time only affects new entries.
func (s *ExamService) ScheduleChanged(sched model.ExamSchedule) {
	if !sched.IsActive || sched.Validate() != nil {
		return
	}
	if n := s.registry.ExtendAll(*sched.EndTime); n > 0 {
		s.log.Info().Int("sessions", n).Time("ends_at", *sched.EndTime).Msg("Extended live exam sessions")
	}
}

// EntryResponse renders an admitted entry for the client.
func EntryResponse(e *Entry) model.ExamEntryResponse {
	s := e.Session
	questions := make([]model.QuestionForStudent, len(s.Questions()))
	for i, q := range s.Questions() {
		questions[i] = q.ForStudent()
	}
	remaining := s.RemainingSeconds()
	return model.ExamEntryResponse{
		State:            s.State(),
		Questions:        questions,
		RemainingSeconds: remaining,
		RemainingLabel:   exam.FormatClock(remaining),
		EndsAt:           s.EndsAt(),
		Answers:          s.Answers(),
		ViolationCount:   s.ViolationCount(),
	}
}

// Session returns the live session of a student, if any.
func (s *ExamService) Session(studentID int) (*exam.Session, bool) {
	return s.registry.Get(studentID)
}

// Dashboard summarises the exam window and the student's submission state.
func (s *ExamService) Dashboard(ctx context.Context, id model.Identity) (*model.DashboardResponse, error) {
	sched := s.schedule.Get()
	now := s.now()
	remaining := exam.RemainingSeconds(sched, now)

	resp := &model.DashboardResponse{
		Student:          id,
		Status:           exam.Status(sched, now),
		Schedule:         sched,
		RemainingSeconds: remaining,
		RemainingLabel:   exam.FormatClock(remaining),
	}
	if sched.Validate() != nil {
		resp.Status = model.ScheduleUnscheduled
		resp.RemainingSeconds = 0
		resp.RemainingLabel = exam.FormatClock(0)
	}

	sub, err := s.submissions.GetByStudent(ctx, id.ID)
	switch {
	case err == nil:
		resp.HasSubmitted = true
		resp.Submission = &model.SubmittedOverview{
			SubmittedAt:    sub.SubmittedAt,
			AutoSubmitted:  sub.AutoSubmitted,
			Answered:       len(sub.Answers),
			TotalQuestions: sub.TotalQuestions,
		}
	case !errors.Is(err, model.ErrSubmissionNotFound):
		return nil, fmt.Errorf("lookup submission: %w", err)
	}

	resp.CanEnter = resp.Status == model.ScheduleOpen && !resp.HasSubmitted
	return resp, nil
}

// Shutdown tears down all live sessions without submitting. Drafts stay in Redis.
func (s *ExamService) Shutdown() {
	n := s.registry.Len()
	s.registry.CloseAll()
	if n > 0 {
		s.log.Info().Int("sessions", n).Msg("Closed live exam sessions")
	}
}
