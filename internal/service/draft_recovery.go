package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

type draftLister interface {
	Students(ctx context.Context) ([]int, error)
	Clear(ctx context.Context, studentID int) error
}

type userFinder interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// DraftRecovery picks up drafts left behind by a previous process. Each student holding
// a draft but no submission gets a live session again, so the countdown still
// auto-submits at the end of the window whether or not the student reconnects.
type DraftRecovery struct {
	exams       *ExamService
	drafts      draftLister
	users       userFinder
	questions   exam.QuestionSource
	submissions exam.SubmissionLookup
	log         zerolog.Logger
}

// NewDraftRecovery creates a new DraftRecovery.
func NewDraftRecovery(
	exams *ExamService,
	drafts draftLister,
	users userFinder,
	questions exam.QuestionSource,
	submissions exam.SubmissionLookup,
	log zerolog.Logger,
) *DraftRecovery {
	return &DraftRecovery{
		exams:       exams,
		drafts:      drafts,
		users:       users,
		questions:   questions,
		submissions: submissions,
		log:         log.With().Str("component", "draft_recovery").Logger(),
	}
}

// Run resumes every orphaned draft and returns how many sessions it started.
// A student whose lookup fails is skipped; their draft stays for the next run.
func (r *DraftRecovery) Run(ctx context.Context) (int, error) {
	ids, err := r.drafts.Students(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	questions, err := r.questions.AllQuestions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return 0, exam.ErrNoQuestions
	}

	resumed := 0
	for _, studentID := range ids {
		ok, err := r.recover(ctx, studentID, questions)
		if err != nil {
			r.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to recover exam draft")
			continue
		}
		if ok {
			resumed++
		}
	}
	return resumed, nil
}

func (r *DraftRecovery) recover(ctx context.Context, studentID int, questions []model.Question) (bool, error) {
	_, err := r.submissions.GetByStudent(ctx, studentID)
	switch {
	case err == nil:
		// Committed already; the draft outlived its clear.
		if err := r.drafts.Clear(ctx, studentID); err != nil {
			r.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to clear stale draft")
		}
		return false, nil
	case !errors.Is(err, model.ErrSubmissionNotFound):
		return false, fmt.Errorf("lookup submission: %w", err)
	}

	user, err := r.users.GetByID(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("lookup student: %w", err)
	}
	if user.Role != model.RoleStudent {
		return false, fmt.Errorf("user %d is not a student", studentID)
	}

	session, created, err := r.exams.Resume(ctx, user.Identity(), questions)
	if err != nil {
		return false, err
	}
	if created {
		r.log.Info().
			Int("student_id", studentID).
			Time("ends_at", session.EndsAt()).
			Int("answered", session.Completion().Answered).
			Msg("Resumed exam session from draft")
	}
	return created, nil
}
