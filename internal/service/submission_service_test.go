package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/repository"
	"github.com/xuri/excelize/v2"
)

func newTestSubmissionService(t *testing.T, subs *fakeSubmissions, live func(int) bool) (*SubmissionService, *fakeMonitor, *repository.DraftRepository) {
	t.Helper()
	_, rdb := newTestRedis(t)
	drafts := repository.NewDraftRepository(rdb)
	monitor := &fakeMonitor{}
	journal := NewSessionJournal(drafts, repository.NewViolationQueue(rdb), monitor, nopLog)
	questions := NewQuestionService(&fakeQuestions{qs: sampleQuestions()}, rdb, nopLog)
	users := &fakeUsers{users: []model.User{
		{ID: 1, Name: "ana", Email: "ana@school.test", Role: model.RoleStudent},
		{ID: 2, Name: "ben", Email: "ben@school.test", Role: model.RoleStudent},
		{ID: 9, Name: "lee", Email: "lee@school.test", Role: model.RoleTeacher},
	}}
	return NewSubmissionService(subs, users, questions, drafts, journal, live, nopLog), monitor, drafts
}

func TestBuildReview(t *testing.T) {
	sub := sampleSubmission(1, "ana")
	review := BuildReview(&sub, sampleQuestions())

	if len(review.Answers) != 3 {
		t.Fatalf("answers = %d, want 3", len(review.Answers))
	}
	want := []struct {
		selected model.Option
		correct  bool
	}{
		{model.OptionB, true},
		{model.OptionC, false},
		{"", false},
	}
	for i, w := range want {
		a := review.Answers[i]
		if a.Selected != w.selected || a.IsCorrect != w.correct {
			t.Errorf("answer %d = %+v, want selected %q correct %v", i, a, w.selected, w.correct)
		}
	}
	if len(review.Violations) != 1 || review.Violations[0].Label != model.ViolationTabSwitch.Label() {
		t.Errorf("violations = %+v", review.Violations)
	}
	if review.Percentage != 33 {
		t.Errorf("percentage = %d, want 33", review.Percentage)
	}
}

func TestSubmissionServiceReviewNotFound(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t, &fakeSubmissions{subs: map[int]model.Submission{}}, nil)
	if _, err := svc.Review(context.Background(), 7); !errors.Is(err, model.ErrSubmissionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmissionServiceDeleteClearsDraft(t *testing.T) {
	subs := &fakeSubmissions{subs: map[int]model.Submission{1: sampleSubmission(1, "ana")}}
	svc, monitor, drafts := newTestSubmissionService(t, subs, nil)
	ctx := context.Background()

	if err := drafts.SaveAnswer(ctx, 1, 1, model.OptionA); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if err := svc.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	answers, _, err := drafts.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("draft survived reset: %v", answers)
	}
	if got := monitor.types(); len(got) != 1 || got[0] != MonitorReset {
		t.Errorf("monitor events = %v", got)
	}

	if err := svc.Delete(ctx, 1); !errors.Is(err, model.ErrSubmissionNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestSubmissionServiceStudents(t *testing.T) {
	subs := &fakeSubmissions{subs: map[int]model.Submission{1: sampleSubmission(1, "ana")}}
	svc, _, _ := newTestSubmissionService(t, subs, func(id int) bool { return id == 2 })

	rows, err := svc.Students(context.Background())
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 students", len(rows))
	}
	for _, r := range rows {
		switch r.ID {
		case 1:
			if !r.HasSubmitted || r.SubmittedAt == nil || r.InProgress {
				t.Errorf("ana = %+v", r)
			}
		case 2:
			if r.HasSubmitted || !r.InProgress {
				t.Errorf("ben = %+v", r)
			}
		}
	}
}

func TestExportXLSX(t *testing.T) {
	subs := &fakeSubmissions{subs: map[int]model.Submission{
		1: sampleSubmission(1, "ben"),
		2: sampleSubmission(2, "ana"),
	}}
	svc, _, _ := newTestSubmissionService(t, subs, nil)

	var buf bytes.Buffer
	if err := svc.ExportXLSX(context.Background(), &buf); err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("result rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Name" || rows[1][0] != "ana" || rows[2][0] != "ben" {
		t.Errorf("rows not sorted by name: %v", rows)
	}
	if rows[1][4] != "33" {
		t.Errorf("percentage cell = %q", rows[1][4])
	}

	vrows, err := f.GetRows(violationsSheet)
	if err != nil {
		t.Fatalf("GetRows violations: %v", err)
	}
	if len(vrows) != 3 || vrows[1][2] != model.ViolationTabSwitch.Label() {
		t.Errorf("violation rows = %v", vrows)
	}
}

func TestExportXLSXEmpty(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t, &fakeSubmissions{subs: map[int]model.Submission{}}, nil)
	var buf bytes.Buffer
	if err := svc.ExportXLSX(context.Background(), &buf); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("err = %v", err)
	}
}
