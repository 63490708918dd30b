package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

// memStore is a first-writer-wins SubmissionStore kept in memory.
type memStore struct {
	mu       sync.Mutex
	subs     map[int]model.Submission
	commits  int
	failNext int
	failErr  error
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[int]model.Submission)}
}

func (m *memStore) GetByStudent(_ context.Context, studentID int) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[studentID]
	if !ok {
		return nil, model.ErrSubmissionNotFound
	}
	return &s, nil
}

func (m *memStore) Commit(_ context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.failNext > 0 {
		m.failNext--
		err := m.failErr
		if err == nil {
			err = errors.New("connection refused")
		}
		return nil, false, err
	}
	if existing, ok := m.subs[sub.StudentID]; ok {
		return &existing, false, nil
	}
	stored := *sub
	stored.ID = int64(len(m.subs) + 1)
	m.subs[sub.StudentID] = stored
	return &stored, true, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// memQueue records parked submissions.
type memQueue struct {
	mu   sync.Mutex
	subs []*model.Submission
	err  error
}

func (q *memQueue) Enqueue(_ context.Context, sub *model.Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.subs = append(q.subs, sub)
	return nil
}

type staticSchedule struct{ s model.ExamSchedule }

func (f staticSchedule) Get() model.ExamSchedule { return f.s }

type staticQuestions struct {
	qs  []model.Question
	err error
}

func (f staticQuestions) AllQuestions(context.Context) ([]model.Question, error) {
	return f.qs, f.err
}

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            i + 1,
			Text:          "question",
			Options:       [4]string{"A) one", "B) two", "C) three", "D) four"},
			CorrectOption: model.Options[i%4],
		}
	}
	return qs
}

// wrongOption returns a letter different from the correct one.
func wrongOption(q model.Question) model.Option {
	for _, o := range model.Options {
		if o != q.CorrectOption {
			return o
		}
	}
	return ""
}

func student(id int) model.Identity {
	return model.Identity{ID: id, Name: "Lithira Perera", Email: "student1@email.com", Role: model.RoleStudent}
}

func window(start, end time.Time) model.ExamSchedule {
	return model.ExamSchedule{StartTime: &start, EndTime: &end, IsActive: true}
}

func newTestFinalizer(t *testing.T, store SubmissionStore, queue FallbackQueue, opts ...FinalizerOption) *Finalizer {
	t.Helper()
	opts = append([]FinalizerOption{WithRetry(2, 0)}, opts...)
	return NewFinalizer(store, queue, zerolog.Nop(), opts...)
}

// eventLog collects session events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	notify chan Event
}

func newEventLog() *eventLog {
	return &eventLog{notify: make(chan Event, 256)}
}

func (l *eventLog) emit(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	select {
	case l.notify <- ev:
	default:
	}
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-l.notify:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q event", typ)
			return Event{}
		}
	}
}
