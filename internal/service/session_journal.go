package service

import (
	"context"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

type draftStore interface {
	SaveAnswer(ctx context.Context, studentID, questionID int, opt model.Option) error
	AppendViolation(ctx context.Context, studentID int, rec model.ViolationRecord) error
	Load(ctx context.Context, studentID int) (map[int]model.Option, []model.ViolationRecord, error)
	Clear(ctx context.Context, studentID int) error
}

type violationEnqueuer interface {
	Enqueue(ctx context.Context, ev model.ViolationEvent) error
}

type monitorPublisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent) error
}

// Monitor event types.
const (
	MonitorJoined    = "joined"
	MonitorViolation = "violation"
	MonitorSubmitted = "submitted"
	MonitorReset     = "reset"
)

// SessionJournal mirrors session progress to Redis: the draft for reload recovery, the
// violation persist queue, and the teacher monitor channel. Failures are logged and swallowed.
type SessionJournal struct {
	drafts     draftStore
	violations violationEnqueuer
	monitor    monitorPublisher
	log        zerolog.Logger
}

// NewSessionJournal creates a new SessionJournal.
func NewSessionJournal(drafts draftStore, violations violationEnqueuer, monitor monitorPublisher, log zerolog.Logger) *SessionJournal {
	return &SessionJournal{
		drafts:     drafts,
		violations: violations,
		monitor:    monitor,
		log:        log.With().Str("component", "session_journal").Logger(),
	}
}

func (j *SessionJournal) AnswerSaved(ctx context.Context, id model.Identity, questionID int, opt model.Option) {
	if err := j.drafts.SaveAnswer(ctx, id.ID, questionID, opt); err != nil {
		j.log.Warn().Err(err).Int("student_id", id.ID).Int("question_id", questionID).Msg("Failed to save draft answer")
	}
}

func (j *SessionJournal) ViolationRecorded(ctx context.Context, id model.Identity, rec model.ViolationRecord) {
	if err := j.drafts.AppendViolation(ctx, id.ID, rec); err != nil {
		j.log.Warn().Err(err).Int("student_id", id.ID).Msg("Failed to save draft violation")
	}
	ev := model.ViolationEvent{StudentID: id.ID, Kind: rec.Kind, OccurredAt: rec.OccurredAt}
	if err := j.violations.Enqueue(ctx, ev); err != nil {
		j.log.Warn().Err(err).Int("student_id", id.ID).Msg("Failed to queue violation event")
	}
	j.publish(ctx, model.MonitorEvent{
		Type:      MonitorViolation,
		StudentID: id.ID,
		Name:      id.Name,
		Kind:      rec.Kind,
		At:        rec.OccurredAt,
	})
}

func (j *SessionJournal) Finalized(ctx context.Context, id model.Identity, sub *model.Submission) {
	if err := j.drafts.Clear(ctx, id.ID); err != nil {
		j.log.Warn().Err(err).Int("student_id", id.ID).Msg("Failed to clear draft")
	}
	j.publish(ctx, model.MonitorEvent{
		Type:      MonitorSubmitted,
		StudentID: id.ID,
		Name:      id.Name,
		Auto:      sub.AutoSubmitted,
		At:        sub.SubmittedAt,
	})
}

// Joined announces a new live session.
func (j *SessionJournal) Joined(ctx context.Context, id model.Identity) {
	j.publish(ctx, model.MonitorEvent{Type: MonitorJoined, StudentID: id.ID, Name: id.Name, At: time.Now().UTC()})
}

func (j *SessionJournal) publish(ctx context.Context, ev model.MonitorEvent) {
	if err := j.monitor.Publish(ctx, ev); err != nil {
		j.log.Debug().Err(err).Str("type", ev.Type).Msg("Failed to publish monitor event")
	}
}
