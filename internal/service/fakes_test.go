package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/repository"
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

var nopLog = zerolog.Nop()

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings { return &fakeSettings{values: map[string]string{}} }

func (f *fakeSettings) GetMany(_ context.Context, keys ...string) (map[string]model.AppSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.AppSetting)
	for _, k := range keys {
		if v, ok := f.values[k]; ok {
			out[k] = model.AppSetting{Key: k, Value: v}
		}
	}
	return out, nil
}

func (f *fakeSettings) UpsertMany(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}

func (f *fakeSettings) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

type fakeUsers struct {
	users []model.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for i := range f.users {
		if f.users[i].Email == email {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) ListByRole(_ context.Context, role model.Role) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeQuestions struct {
	qs    []model.Question
	calls int
}

func (f *fakeQuestions) ListAll(context.Context) ([]model.Question, error) {
	f.calls++
	return f.qs, nil
}

type fakeSubmissions struct {
	subs    map[int]model.Submission
	deleted []int
}

func (f *fakeSubmissions) GetByStudent(_ context.Context, studentID int) (*model.Submission, error) {
	s, ok := f.subs[studentID]
	if !ok {
		return nil, model.ErrSubmissionNotFound
	}
	return &s, nil
}

func (f *fakeSubmissions) List(context.Context) ([]model.Submission, error) {
	out := make([]model.Submission, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSubmissions) DeleteByStudent(_ context.Context, studentID int) error {
	if _, ok := f.subs[studentID]; !ok {
		return model.ErrSubmissionNotFound
	}
	delete(f.subs, studentID)
	f.deleted = append(f.deleted, studentID)
	return nil
}

type fakeMonitor struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (f *fakeMonitor) Publish(_ context.Context, ev model.MonitorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeMonitor) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func sampleQuestions() []model.Question {
	return []model.Question{
		{ID: 1, Text: "2 + 2", Options: [4]string{"3", "4", "5", "6"}, CorrectOption: model.OptionB},
		{ID: 2, Text: "Capital of France", Options: [4]string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectOption: model.OptionA},
		{ID: 3, Text: "Largest planet", Options: [4]string{"Mars", "Venus", "Jupiter", "Earth"}, CorrectOption: model.OptionC},
	}
}

func sampleSubmission(studentID int, name string) model.Submission {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.Submission{
		ID:             int64(studentID),
		StudentID:      studentID,
		StudentName:    name,
		StudentEmail:   name + "@school.test",
		Answers:        map[int]model.Option{1: model.OptionB, 2: model.OptionC},
		Score:          1,
		TotalQuestions: 3,
		Violations: []model.ViolationRecord{
			{Kind: model.ViolationTabSwitch, OccurredAt: at.Add(-time.Minute)},
		},
		ViolationCount: 1,
		SubmittedAt:    at,
	}
}
