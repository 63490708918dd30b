package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeSink struct {
	mu       sync.Mutex
	batchErr error
	failFor  map[int]bool
	batches  [][]model.ViolationEvent
	singles  []model.ViolationEvent
}

func (s *fakeSink) InsertBatch(_ context.Context, events []model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	cp := make([]model.ViolationEvent, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *fakeSink) Insert(_ context.Context, ev model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[ev.StudentID] {
		return errors.New("insert failed")
	}
	s.singles = append(s.singles, ev)
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.singles)
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func violation(studentID int) model.ViolationEvent {
	return model.ViolationEvent{
		StudentID:  studentID,
		Kind:       model.ViolationTabSwitch,
		OccurredAt: time.Date(2026, 3, 1, 9, 0, studentID, 0, time.UTC),
	}
}

func TestViolationWorkerFlushFallsBackRowByRow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sink := &fakeSink{batchErr: errors.New("copy failed"), failFor: map[int]bool{2: true}}
	w := NewViolationWorker(sink, rdb, zerolog.Nop())
	w.backoff = 0

	w.flushSafe(context.Background(), []model.ViolationEvent{violation(1), violation(2), violation(3)})

	if len(sink.singles) != 2 {
		t.Fatalf("row-by-row inserts = %d, want 2", len(sink.singles))
	}
	items, err := mr.List(config.WorkerKey.PersistViolationsQueue)
	if err != nil {
		t.Fatalf("requeued list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("requeued = %d, want 1", len(items))
	}
	var ev model.ViolationEvent
	if err := json.Unmarshal([]byte(items[0]), &ev); err != nil {
		t.Fatalf("decode requeued: %v", err)
	}
	if ev.StudentID != 2 {
		t.Errorf("requeued student = %d, want 2", ev.StudentID)
	}
}

func TestViolationWorkerDrainsQueueAndFlushesOnShutdown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sink := &fakeSink{}
	w := NewViolationWorker(sink, rdb, zerolog.Nop())
	w.batchTimeout = 10 * time.Millisecond

	for i := 1; i <= 3; i++ {
		data, _ := json.Marshal(violation(i))
		mr.RPush(config.WorkerKey.PersistViolationsQueue, string(data))
	}
	mr.RPush(config.WorkerKey.PersistViolationsQueue, "{not json")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sink.total() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if got := sink.total(); got != 3 {
		t.Fatalf("persisted = %d, want 3", got)
	}
	if mr.Exists(config.WorkerKey.PersistViolationsQueue) {
		t.Error("queue should be empty")
	}
}

type fakeCommitter struct {
	mu       sync.Mutex
	err      error
	existing map[int]bool
	stored   []*model.Submission
}

func (c *fakeCommitter) Commit(_ context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	if c.existing[sub.StudentID] {
		return sub, false, nil
	}
	cp := *sub
	cp.ID = int64(len(c.stored) + 1)
	c.stored = append(c.stored, &cp)
	return &cp, true, nil
}

type fakeNotifier struct {
	ids []int
}

func (n *fakeNotifier) Finalized(_ context.Context, id model.Identity, _ *model.Submission) {
	n.ids = append(n.ids, id.ID)
}

func pendingPayload(t *testing.T, studentID int) string {
	t.Helper()
	data, err := json.Marshal(&model.Submission{
		StudentID:      studentID,
		StudentName:    "Student",
		Answers:        map[int]model.Option{1: model.OptionA},
		Score:          1,
		TotalQuestions: 2,
		AutoSubmitted:  true,
		SubmittedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestSubmissionRetryWorkerCommitsPending(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := &fakeCommitter{existing: map[int]bool{8: true}}
	notifier := &fakeNotifier{}
	w := NewSubmissionRetryWorker(store, notifier, rdb, zerolog.Nop())

	mr.RPush(config.WorkerKey.PendingSubmissionsQueue, pendingPayload(t, 7))
	mr.RPush(config.WorkerKey.PendingSubmissionsQueue, pendingPayload(t, 8))
	mr.RPush(config.WorkerKey.PendingSubmissionsQueue, "garbage")

	w.drain(context.Background())

	if len(store.stored) != 1 || store.stored[0].StudentID != 7 {
		t.Fatalf("stored = %+v, want only student 7", store.stored)
	}
	if !store.stored[0].AutoSubmitted {
		t.Error("auto-submitted flag lost")
	}
	if len(notifier.ids) != 1 || notifier.ids[0] != 7 {
		t.Errorf("notified = %v, want [7]", notifier.ids)
	}
	if mr.Exists(config.WorkerKey.PendingSubmissionsQueue) {
		t.Error("queue should be empty")
	}
}

func TestSubmissionRetryWorkerRequeuesOnFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := &fakeCommitter{err: errors.New("db down")}
	w := NewSubmissionRetryWorker(store, nil, rdb, zerolog.Nop())
	w.backoff = time.Millisecond

	mr.RPush(config.WorkerKey.PendingSubmissionsQueue, pendingPayload(t, 7))
	w.processNext(context.Background())

	items, err := mr.List(config.WorkerKey.PendingSubmissionsQueue)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue length = %d, want 1", len(items))
	}
}
