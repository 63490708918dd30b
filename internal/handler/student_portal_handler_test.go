package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/middleware"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/repository"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type questionList []model.Question

func (q questionList) AllQuestions(context.Context) ([]model.Question, error) { return q, nil }

type submittedSet map[int]bool

func (s submittedSet) GetByStudent(_ context.Context, studentID int) (*model.Submission, error) {
	if !s[studentID] {
		return nil, model.ErrSubmissionNotFound
	}
	return &model.Submission{StudentID: studentID}, nil
}

type portalFixture struct {
	settings  *memorySettings
	questions questionList
	submitted submittedSet
}

func newPortalFixture(start, end time.Time) *portalFixture {
	return &portalFixture{
		settings: &memorySettings{values: map[string]string{
			model.SettingExamStart:  start.UTC().Format(time.RFC3339Nano),
			model.SettingExamEnd:    end.UTC().Format(time.RFC3339Nano),
			model.SettingExamActive: "true",
		}},
		questions: questionList{
			{ID: 1, Text: "2 + 2", Options: [4]string{"3", "4", "5", "6"}, CorrectOption: model.OptionB},
			{ID: 2, Text: "Capital of France", Options: [4]string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectOption: model.OptionA},
		},
		submitted: submittedSet{},
	}
}

// router builds the exam entry endpoint; claims nil means an anonymous request.
func (f *portalFixture) router(t *testing.T, claims *service.Claims) *gin.Engine {
	t.Helper()
	log := zerolog.Nop()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	schedule := service.NewScheduleService(f.settings, nil, log)
	if err := schedule.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	drafts := repository.NewDraftRepository(rdb)
	journal := service.NewSessionJournal(drafts, repository.NewViolationQueue(rdb),
		repository.NewMonitorRepository(nil, rdb), log)
	registry := exam.NewRegistry()
	t.Cleanup(registry.CloseAll)

	gate := exam.NewGate(schedule, f.questions, f.submitted, exam.WithRedirects("/login", "/student/dashboard"))
	exams := service.NewExamService(&config.Config{TimeLowThreshold: 5 * time.Minute},
		gate, registry, exam.NewFinalizer(nil, nil, log), schedule, f.submitted, drafts, journal, log)
	h := NewStudentPortalHandler(exams, log)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextKeyClaims, claims)
		}
		c.Next()
	})
	r.GET("/exam", h.EnterExam)
	return r
}

func studentClaims(id int) *service.Claims {
	return &service.Claims{UserID: id, Name: "ana", Email: "ana@school.test", Role: model.RoleStudent}
}

func TestEnterExamAdmitsDuringWindow(t *testing.T) {
	now := time.Now()
	f := newPortalFixture(now.Add(-time.Minute), now.Add(time.Hour))

	w, env := doJSON(t, f.router(t, studentClaims(1)), http.MethodGet, "/exam", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body model.ExamEntryResponse
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if body.State != model.StateActive || len(body.Questions) != 2 || body.RemainingSeconds <= 0 {
		t.Errorf("entry = %+v", body)
	}
}

func TestEnterExamRedirectsWhenDenied(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		claims    *service.Claims
		submitted bool
		code      string
		location  string
	}{
		{"anonymous", now.Add(-time.Minute), now.Add(time.Hour), nil, false, "TOKEN_REQUIRED", "/login"},
		{"teacher", now.Add(-time.Minute), now.Add(time.Hour), &service.Claims{UserID: 9, Role: model.RoleTeacher}, false, "STUDENT_ACCESS_ONLY", "/student/dashboard"},
		{"not started", now.Add(time.Hour), now.Add(2 * time.Hour), studentClaims(1), false, "EXAM_NOT_AVAILABLE", "/student/dashboard"},
		{"ended", now.Add(-2 * time.Hour), now.Add(-time.Second), studentClaims(1), false, "EXAM_NOT_AVAILABLE", "/student/dashboard"},
		{"already submitted", now.Add(-time.Minute), now.Add(time.Hour), studentClaims(1), true, "ALREADY_SUBMITTED", "/student/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPortalFixture(tt.start, tt.end)
			if tt.submitted {
				f.submitted[1] = true
			}

			w, env := doJSON(t, f.router(t, tt.claims), http.MethodGet, "/exam", nil)
			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303 (body %s)", w.Code, w.Body.String())
			}
			if got := w.Header().Get("Location"); got != tt.location {
				t.Errorf("Location = %q, want %q", got, tt.location)
			}
			if env.Error == nil || env.Error.Code != tt.code || env.Error.Redirect != tt.location {
				t.Errorf("error = %+v, want %s -> %s", env.Error, tt.code, tt.location)
			}
		})
	}
}

func TestEnterExamBlocked(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		setup func(f *portalFixture)
	}{
		{"malformed schedule", func(f *portalFixture) { delete(f.settings.values, model.SettingExamEnd) }},
		{"no questions", func(f *portalFixture) { f.questions = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPortalFixture(now.Add(-time.Minute), now.Add(time.Hour))
			tt.setup(f)

			w, env := doJSON(t, f.router(t, studentClaims(1)), http.MethodGet, "/exam", nil)
			if w.Code != http.StatusConflict {
				t.Fatalf("status = %d, want 409 (body %s)", w.Code, w.Body.String())
			}
			if env.Error == nil || env.Error.Code != "EXAM_BLOCKED" {
				t.Errorf("error = %+v, want EXAM_BLOCKED", env.Error)
			}
			var body struct {
				State model.SessionState `json:"state"`
			}
			if err := json.Unmarshal(env.Data, &body); err != nil || body.State != model.StateBlocked {
				t.Errorf("data = %s, want blocked state", env.Data)
			}
		})
	}
}
