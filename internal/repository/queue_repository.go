package repository

import (
	"context"
	"encoding/json"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// PendingSubmissionQueue parks auto-submissions that could not be committed.
// The submission retry worker drains it.
type PendingSubmissionQueue struct {
	rdb *redis.Client
}

func NewPendingSubmissionQueue(rdb *redis.Client) *PendingSubmissionQueue {
	return &PendingSubmissionQueue{rdb: rdb}
}

// Enqueue appends the submission to the pending queue.
func (q *PendingSubmissionQueue) Enqueue(ctx context.Context, sub *model.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PendingSubmissionsQueue, data).Err()
}

// Len returns the number of parked submissions.
func (q *PendingSubmissionQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.PendingSubmissionsQueue).Result()
}

// ViolationQueue buffers live violation events for batch insertion.
type ViolationQueue struct {
	rdb *redis.Client
}

func NewViolationQueue(rdb *redis.Client) *ViolationQueue {
	return &ViolationQueue{rdb: rdb}
}

// Enqueue appends one event to the persist queue.
func (q *ViolationQueue) Enqueue(ctx context.Context, ev model.ViolationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}
