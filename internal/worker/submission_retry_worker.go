package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type submissionCommitter interface {
	Commit(ctx context.Context, sub *model.Submission) (*model.Submission, bool, error)
}

type finalizeNotifier interface {
	Finalized(ctx context.Context, id model.Identity, sub *model.Submission)
}

// SubmissionRetryWorker consumes pending_submissions_queue: auto-submissions the
// finalizer parked because the database was unreachable at expiry.
type SubmissionRetryWorker struct {
	store    submissionCommitter
	notifier finalizeNotifier
	rdb      *redis.Client
	log      zerolog.Logger
	backoff  time.Duration
}

// NewSubmissionRetryWorker creates a new SubmissionRetryWorker. notifier may be nil.
func NewSubmissionRetryWorker(store submissionCommitter, notifier finalizeNotifier, rdb *redis.Client, log zerolog.Logger) *SubmissionRetryWorker {
	return &SubmissionRetryWorker{
		store:    store,
		notifier: notifier,
		rdb:      rdb,
		log:      log.With().Str("component", "submission_retry_worker").Logger(),
		backoff:  5 * time.Second,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *SubmissionRetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionRetryWorker started")

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			w.log.Info().Msg("SubmissionRetryWorker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionRetryWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PendingSubmissionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			w.sleep(ctx, w.backoff)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.commit(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Pending submission commit failed, retrying later")
		w.rdb.RPush(ctx, config.WorkerKey.PendingSubmissionsQueue, result[1])
		w.sleep(ctx, w.backoff)
	}
}

// commit stores one parked submission. A malformed payload is logged and dropped.
func (w *SubmissionRetryWorker) commit(ctx context.Context, raw string) error {
	var sub model.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("CRITICAL: Discarding unreadable pending submission")
		return nil
	}

	stored, created, err := w.store.Commit(ctx, &sub)
	if err != nil {
		return err
	}
	if !created {
		w.log.Info().Int("student_id", sub.StudentID).Msg("Student already has a submission, pending copy discarded")
		return nil
	}
	w.log.Info().
		Int("student_id", stored.StudentID).
		Int("score", stored.Score).
		Int("total_questions", stored.TotalQuestions).
		Msg("Pending submission committed")

	if w.notifier != nil {
		id := model.Identity{ID: stored.StudentID, Name: stored.StudentName, Email: stored.StudentEmail, Role: model.RoleStudent}
		w.notifier.Finalized(ctx, id, stored)
	}
	return nil
}

// drain commits whatever is left on the queue before shutdown, stopping at the first failure.
func (w *SubmissionRetryWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PendingSubmissionsQueue).Result()
		if err != nil {
			break
		}
		if err := w.commit(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain commit error")
			w.rdb.RPush(ctx, config.WorkerKey.PendingSubmissionsQueue, raw)
			break
		}
		drained++
	}
	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained pending submissions")
	}
}

func (w *SubmissionRetryWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
