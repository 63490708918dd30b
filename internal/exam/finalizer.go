package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

// Trigger records what caused a finalization.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

var (
	// ErrIncomplete rejects a manual submit while questions remain unanswered.
	ErrIncomplete = errors.New("all questions must be answered before submitting")
	// ErrNotStudent rejects finalization for a non-student identity.
	ErrNotStudent = errors.New("only students can submit")
	// ErrCommitFailed is a retryable failure of a manual submit.
	ErrCommitFailed = errors.New("submission could not be saved, please try again")
	// ErrSubmissionQueued means a timeout submission was parked on the pending queue
	// and will be committed by the retry worker.
	ErrSubmissionQueued = errors.New("submission queued for later commit")
	// ErrFinalizeFailed means a timeout submission could neither be saved nor queued.
	ErrFinalizeFailed = errors.New("auto-submission failed")
)

// SubmissionStore persists submissions keyed by student. Commit must be first-writer-wins:
// when a record already exists it returns that record with created=false and changes nothing.
type SubmissionStore interface {
	SubmissionLookup
	Commit(ctx context.Context, sub *model.Submission) (stored *model.Submission, created bool, err error)
}

// FallbackQueue durably parks a submission that could not be committed.
type FallbackQueue interface {
	Enqueue(ctx context.Context, sub *model.Submission) error
}

// FinalizeInput is everything needed to build a submission.
type FinalizeInput struct {
	Trigger    Trigger
	Identity   model.Identity
	Ledger     *Ledger
	Violations []model.ViolationRecord
	Questions  []model.Question
}

// Finalizer turns a session's state into one committed Submission.
type Finalizer struct {
	store    SubmissionStore
	fallback FallbackQueue
	retries  int
	backoff  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
}

// FinalizerOption configures a Finalizer.
type FinalizerOption func(*Finalizer)

// WithRetry sets how many extra commit attempts a timeout submission gets and the base backoff.
func WithRetry(retries int, backoff time.Duration) FinalizerOption {
	return func(f *Finalizer) {
		if retries >= 0 {
			f.retries = retries
		}
		if backoff >= 0 {
			f.backoff = backoff
		}
	}
}

// WithFinalizerClock overrides the submission timestamp source.
func WithFinalizerClock(now func() time.Time) FinalizerOption {
	return func(f *Finalizer) { f.now = now }
}

// NewFinalizer creates a Finalizer. fallback may be nil.
func NewFinalizer(store SubmissionStore, fallback FallbackQueue, log zerolog.Logger, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		store:    store,
		fallback: fallback,
		retries:  3,
		backoff:  500 * time.Millisecond,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      log.With().Str("component", "finalizer").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Score counts questions whose correct option equals the recorded answer.
// Unanswered questions are incorrect.
func Score(questions []model.Question, answers map[int]model.Option) int {
	score := 0
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a == q.CorrectOption {
			score++
		}
	}
	return score
}

// Build assembles the submission without persisting it.
func (f *Finalizer) Build(in FinalizeInput) *model.Submission {
	answers := in.Ledger.Snapshot()
	violations := make([]model.ViolationRecord, len(in.Violations))
	copy(violations, in.Violations)
	return &model.Submission{
		StudentID:      in.Identity.ID,
		StudentName:    in.Identity.Name,
		StudentEmail:   in.Identity.Email,
		Answers:        answers,
		Score:          Score(in.Questions, answers),
		TotalQuestions: len(in.Questions),
		Violations:     violations,
		ViolationCount: len(violations),
		AutoSubmitted:  in.Trigger == TriggerTimeout,
		SubmittedAt:    f.now().UTC(),
	}
}

// Finalize builds and commits the submission. Whichever trigger commits first wins;
// every later call returns the stored record unchanged.
//
// A manual submit fails fast with ErrCommitFailed so the student can retry.
// A timeout submit retries with backoff, then falls back to the pending queue
// (returning the built record with ErrSubmissionQueued).
func (f *Finalizer) Finalize(ctx context.Context, in FinalizeInput) (*model.Submission, error) {
	if in.Identity.ID <= 0 || in.Identity.Role != model.RoleStudent {
		return nil, ErrNotStudent
	}
	if in.Trigger == TriggerManual && !in.Ledger.IsComplete() {
		return nil, ErrIncomplete
	}

	sub := f.Build(in)

	if in.Trigger == TriggerManual {
		stored, created, err := f.store.Commit(ctx, sub)
		if err != nil {
			f.log.Warn().Err(err).Int("student_id", sub.StudentID).Msg("Manual submission commit failed")
			return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
		f.logCommitted(stored, created, in.Trigger)
		return stored, nil
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, f.backoff*time.Duration(1<<(attempt-1))); err != nil {
				lastErr = err
				break
			}
		}
		stored, created, err := f.store.Commit(ctx, sub)
		if err == nil {
			f.logCommitted(stored, created, in.Trigger)
			return stored, nil
		}
		lastErr = err
		f.log.Warn().Err(err).
			Int("student_id", sub.StudentID).
			Int("attempt", attempt+1).
			Msg("Auto-submission commit failed")
	}

	if f.fallback != nil {
		err := f.fallback.Enqueue(ctx, sub)
		if err == nil {
			f.log.Warn().Int("student_id", sub.StudentID).Msg("Auto-submission parked on pending queue")
			return sub, ErrSubmissionQueued
		}
		f.log.Error().Err(err).Int("student_id", sub.StudentID).Msg("Failed to park auto-submission")
	}

	f.log.Error().Err(lastErr).
		Int("student_id", sub.StudentID).
		Int("score", sub.Score).
		Int("total_questions", sub.TotalQuestions).
		Interface("answers", sub.Answers).
		Msg("CRITICAL: auto-submission lost")
	return nil, fmt.Errorf("%w: %w", ErrFinalizeFailed, lastErr)
}

func (f *Finalizer) logCommitted(sub *model.Submission, created bool, trigger Trigger) {
	if !created {
		f.log.Info().
			Int("student_id", sub.StudentID).
			Str("trigger", string(trigger)).
			Msg("Submission already exists, returning stored record")
		return
	}
	f.log.Info().
		Int("student_id", sub.StudentID).
		Str("trigger", string(trigger)).
		Int("score", sub.Score).
		Int("total_questions", sub.TotalQuestions).
		Int("violations", sub.ViolationCount).
		Msg("Submission committed")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
