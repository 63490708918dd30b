package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/repository"
)

// committedSubmissions is a first-writer-wins store shared with session goroutines.
type committedSubmissions struct {
	mu   sync.Mutex
	subs map[int]model.Submission
}

func (c *committedSubmissions) GetByStudent(_ context.Context, studentID int) (*model.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subs[studentID]
	if !ok {
		return nil, model.ErrSubmissionNotFound
	}
	return &s, nil
}

func (c *committedSubmissions) Commit(_ context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.subs[sub.StudentID]; ok {
		return &existing, false, nil
	}
	stored := *sub
	stored.ID = int64(len(c.subs) + 1)
	c.subs[sub.StudentID] = stored
	return &stored, true, nil
}

func (c *committedSubmissions) get(studentID int) (model.Submission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subs[studentID]
	return s, ok
}

type recoveryFixture struct {
	recovery *DraftRecovery
	schedule *ScheduleService
	drafts   *repository.DraftRepository
	subs     *committedSubmissions
	registry *exam.Registry
	monitor  *fakeMonitor
}

func newRecoveryFixture(t *testing.T, start, end time.Time) *recoveryFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	schedule := NewScheduleService(newFakeSettings(), nil, nopLog)
	if _, err := schedule.Set(ctx, start, end); err != nil {
		t.Fatalf("Set: %v", err)
	}

	subs := &committedSubmissions{subs: map[int]model.Submission{}}
	drafts := repository.NewDraftRepository(rdb)
	monitor := &fakeMonitor{}
	journal := NewSessionJournal(drafts, repository.NewViolationQueue(rdb), monitor, nopLog)
	questions := NewQuestionService(&fakeQuestions{qs: sampleQuestions()}, rdb, nopLog)
	registry := exam.NewRegistry()
	t.Cleanup(registry.CloseAll)

	gate := exam.NewGate(schedule, questions, subs)
	finalizer := exam.NewFinalizer(subs, nil, nopLog)
	exams := NewExamService(&config.Config{TimeLowThreshold: 5 * time.Minute},
		gate, registry, finalizer, schedule, subs, drafts, journal, nopLog)

	users := &fakeUsers{users: []model.User{
		{ID: 1, Name: "ana", Email: "ana@school.test", Role: model.RoleStudent},
		{ID: 2, Name: "ben", Email: "ben@school.test", Role: model.RoleStudent},
		{ID: 9, Name: "teacher", Email: "teacher@school.test", Role: model.RoleTeacher},
	}}

	return &recoveryFixture{
		recovery: NewDraftRecovery(exams, drafts, users, questions, subs, nopLog),
		schedule: schedule,
		drafts:   drafts,
		subs:     subs,
		registry: registry,
		monitor:  monitor,
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting until %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDraftRecoveryAutoSubmitsAfterWindowEnded(t *testing.T) {
	now := time.Now().UTC()
	fx := newRecoveryFixture(t, now.Add(-2*time.Hour), now.Add(-time.Second))
	ctx := context.Background()

	_ = fx.drafts.SaveAnswer(ctx, 1, 1, model.OptionB)
	_ = fx.drafts.SaveAnswer(ctx, 1, 2, model.OptionC)
	_ = fx.drafts.AppendViolation(ctx, 1, model.ViolationRecord{Kind: model.ViolationTabSwitch, OccurredAt: now.Add(-time.Hour)})

	n, err := fx.recovery.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 {
		t.Fatalf("resumed %d sessions, want 1", n)
	}

	waitUntil(t, "the draft is committed", func() bool {
		_, ok := fx.subs.get(1)
		return ok
	})
	sub, _ := fx.subs.get(1)
	if !sub.AutoSubmitted {
		t.Error("recovered submission is not marked auto-submitted")
	}
	if sub.StudentName != "ana" || sub.StudentEmail != "ana@school.test" {
		t.Errorf("identity = %q %q", sub.StudentName, sub.StudentEmail)
	}
	if len(sub.Answers) != 2 || sub.Score != 1 || sub.TotalQuestions != 3 {
		t.Errorf("submission = %+v", sub)
	}
	if sub.ViolationCount != 1 {
		t.Errorf("violations = %d, want 1", sub.ViolationCount)
	}

	waitUntil(t, "the session leaves the registry", func() bool { return fx.registry.Len() == 0 })
	waitUntil(t, "the draft is cleared", func() bool {
		ids, err := fx.drafts.Students(ctx)
		return err == nil && len(ids) == 0
	})

	submitted := 0
	for _, typ := range fx.monitor.types() {
		if typ == MonitorSubmitted {
			submitted++
		}
	}
	if submitted != 1 {
		t.Errorf("monitor saw %d submitted events, want 1", submitted)
	}
}

func TestDraftRecoveryResumesOpenWindow(t *testing.T) {
	now := time.Now().UTC()
	fx := newRecoveryFixture(t, now.Add(-time.Hour), now.Add(time.Hour))
	ctx := context.Background()

	_ = fx.drafts.SaveAnswer(ctx, 2, 3, model.OptionC)

	n, err := fx.recovery.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 {
		t.Fatalf("resumed %d sessions, want 1", n)
	}

	s, ok := fx.registry.Get(2)
	if !ok {
		t.Fatal("no live session after recovery")
	}
	if s.Answers()[3] != model.OptionC {
		t.Errorf("answers = %v", s.Answers())
	}
	if s.State() != model.StateActive || s.RemainingSeconds() <= 0 {
		t.Errorf("state = %q remaining = %d", s.State(), s.RemainingSeconds())
	}
	if _, ok := fx.subs.get(2); ok {
		t.Error("open window was submitted early")
	}
}

func TestDraftRecoverySkipsSettledAndUnknownStudents(t *testing.T) {
	now := time.Now().UTC()
	fx := newRecoveryFixture(t, now.Add(-time.Hour), now.Add(time.Hour))
	ctx := context.Background()

	fx.subs.subs[1] = sampleSubmission(1, "ana")
	_ = fx.drafts.SaveAnswer(ctx, 1, 1, model.OptionA)
	_ = fx.drafts.SaveAnswer(ctx, 9, 1, model.OptionA)
	_ = fx.drafts.SaveAnswer(ctx, 42, 1, model.OptionA)

	n, err := fx.recovery.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 || fx.registry.Len() != 0 {
		t.Fatalf("resumed %d sessions, registry holds %d", n, fx.registry.Len())
	}

	ids, err := fx.drafts.Students(ctx)
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if len(ids) != 2 || ids[0] != 9 || ids[1] != 42 {
		t.Errorf("remaining drafts = %v, want [9 42]", ids)
	}
}

func TestDraftRecoveryNothingToDo(t *testing.T) {
	now := time.Now().UTC()
	fx := newRecoveryFixture(t, now.Add(-time.Hour), now.Add(time.Hour))

	n, err := fx.recovery.Run(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Run = %d, %v", n, err)
	}
}
