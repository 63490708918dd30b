package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// DraftTTL bounds how long an abandoned draft survives.
const DraftTTL = 24 * time.Hour

// DraftRepository mirrors an in-progress session's answers and violations in Redis so a
// reconnect, or a restarted server, resumes where the student left off.
type DraftRepository struct {
	rdb *redis.Client
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(rdb *redis.Client) *DraftRepository {
	return &DraftRepository{rdb: rdb}
}

// SaveAnswer records the latest choice for a question.
func (r *DraftRepository) SaveAnswer(ctx context.Context, studentID, questionID int, opt model.Option) error {
	key := config.CacheKey.StudentDraftAnswersKey(studentID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(questionID), string(opt))
	pipe.Expire(ctx, key, DraftTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AppendViolation appends one record to the draft log.
func (r *DraftRepository) AppendViolation(ctx context.Context, studentID int, rec model.ViolationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := config.CacheKey.StudentDraftViolationsKey(studentID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, DraftTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the saved draft. Missing keys yield an empty draft.
func (r *DraftRepository) Load(ctx context.Context, studentID int) (map[int]model.Option, []model.ViolationRecord, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.StudentDraftAnswersKey(studentID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load draft answers: %w", err)
	}
	answers := make(map[int]model.Option, len(raw))
	for k, v := range raw {
		qid, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		answers[qid] = model.Option(v)
	}

	items, err := r.rdb.LRange(ctx, config.CacheKey.StudentDraftViolationsKey(studentID), 0, -1).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load draft violations: %w", err)
	}
	violations := make([]model.ViolationRecord, 0, len(items))
	for _, item := range items {
		var rec model.ViolationRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		violations = append(violations, rec)
	}
	return answers, violations, nil
}

// Students lists the students holding a draft, in ascending order.
func (r *DraftRepository) Students(ctx context.Context) ([]int, error) {
	seen := make(map[int]struct{})
	iter := r.rdb.Scan(ctx, 0, config.CacheKey.StudentDraftPattern(), 200).Iterator()
	for iter.Next(ctx) {
		var id int
		if _, err := fmt.Sscanf(iter.Val(), "student:%d:exam:", &id); err != nil || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan drafts: %w", err)
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Clear drops the draft once the submission is committed.
func (r *DraftRepository) Clear(ctx context.Context, studentID int) error {
	return r.rdb.Del(ctx,
		config.CacheKey.StudentDraftAnswersKey(studentID),
		config.CacheKey.StudentDraftViolationsKey(studentID),
	).Err()
}
