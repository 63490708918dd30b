package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type submissionStore interface {
	GetByStudent(ctx context.Context, studentID int) (*model.Submission, error)
	List(ctx context.Context) ([]model.Submission, error)
	DeleteByStudent(ctx context.Context, studentID int) error
}

type studentLister interface {
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
}

// StudentStatus is one row of the teacher's student roster.
type StudentStatus struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	HasSubmitted bool       `json:"has_submitted"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	InProgress   bool       `json:"in_progress"`
}

// SubmissionService serves the teacher's review screens.
type SubmissionService struct {
	store     submissionStore
	users     studentLister
	questions *QuestionService
	drafts    draftStore
	journal   *SessionJournal
	live      func(studentID int) bool
	log       zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService. live reports whether a student
// currently holds an exam session; it may be nil.
func NewSubmissionService(
	store submissionStore,
	users studentLister,
	questions *QuestionService,
	drafts draftStore,
	journal *SessionJournal,
	live func(studentID int) bool,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:     store,
		users:     users,
		questions: questions,
		drafts:    drafts,
		journal:   journal,
		live:      live,
		log:       log.With().Str("component", "submission_service").Logger(),
	}
}

// List returns every submission as a summary row, newest first.
func (s *SubmissionService) List(ctx context.Context) ([]model.SubmissionSummary, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]model.SubmissionSummary, len(subs))
	for i := range subs {
		out[i] = subs[i].Summary()
	}
	return out, nil
}

// Review returns one submission with every question resolved against the answer key.
func (s *SubmissionService) Review(ctx context.Context, studentID int) (*model.SubmissionReview, error) {
	sub, err := s.store.GetByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	qs, err := s.questions.AllQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return BuildReview(sub, qs), nil
}

// BuildReview joins a submission with the question set.
func BuildReview(sub *model.Submission, questions []model.Question) *model.SubmissionReview {
	review := &model.SubmissionReview{
		SubmissionSummary: sub.Summary(),
		Answers:           make([]model.ReviewedAnswer, 0, len(questions)),
		Violations:        make([]model.ReviewedViolation, 0, len(sub.Violations)),
	}
	for _, q := range questions {
		selected := sub.Answers[q.ID]
		review.Answers = append(review.Answers, model.ReviewedAnswer{
			QuestionID:    q.ID,
			Text:          q.Text,
			Options:       q.Options,
			Selected:      selected,
			CorrectOption: q.CorrectOption,
			IsCorrect:     selected != "" && selected == q.CorrectOption,
		})
	}
	for _, v := range sub.Violations {
		review.Violations = append(review.Violations, model.ReviewedViolation{
			Kind:       v.Kind,
			Label:      v.Kind.Label(),
			OccurredAt: v.OccurredAt,
		})
	}
	return review
}

// Delete removes a student's submission so they may sit the exam again.
func (s *SubmissionService) Delete(ctx context.Context, studentID int) error {
	if err := s.store.DeleteByStudent(ctx, studentID); err != nil {
		return err
	}
	if err := s.drafts.Clear(ctx, studentID); err != nil {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to clear draft after reset")
	}
	s.journal.publish(ctx, model.MonitorEvent{Type: MonitorReset, StudentID: studentID, At: time.Now().UTC()})
	s.log.Info().Int("student_id", studentID).Msg("Submission deleted for retake")
	return nil
}

// Students lists every student with their submission status.
func (s *SubmissionService) Students(ctx context.Context) ([]StudentStatus, error) {
	users, err := s.users.ListByRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	submitted := make(map[int]time.Time, len(subs))
	for _, sub := range subs {
		submitted[sub.StudentID] = sub.SubmittedAt
	}

	out := make([]StudentStatus, 0, len(users))
	for _, u := range users {
		row := StudentStatus{ID: u.ID, Name: u.Name, Email: u.Email}
		if at, ok := submitted[u.ID]; ok {
			at := at
			row.HasSubmitted = true
			row.SubmittedAt = &at
		}
		if s.live != nil {
			row.InProgress = s.live(u.ID)
		}
		out = append(out, row)
	}
	return out, nil
}

// ─── Export ─────────────────────────────────────────────────────────

// ErrNothingToExport is returned when there are no submissions yet.
var ErrNothingToExport = errors.New("no submissions to export")

const (
	resultsSheet    = "Results"
	violationsSheet = "Violations"
)

// ExportXLSX writes a workbook with one results row per student and a sheet of
// every recorded violation.
func (s *SubmissionService) ExportXLSX(ctx context.Context, w io.Writer) error {
	subs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNothingToExport
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].StudentName < subs[j].StudentName })

	f, err := BuildWorkbook(subs)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.log.Info().Int("rows", len(subs)).Msg("Exported submissions")
	return nil
}

// BuildWorkbook lays out the export workbook. The caller closes it.
func BuildWorkbook(subs []model.Submission) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(violationsSheet); err != nil {
		f.Close()
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	results := [][]any{{"Name", "Email", "Score", "Total", "Percentage", "Violations", "Auto submitted", "Submitted at"}}
	violations := [][]any{{"Name", "Email", "Violation", "Occurred at"}}
	for _, sub := range subs {
		results = append(results, []any{
			sub.StudentName, sub.StudentEmail, sub.Score, sub.TotalQuestions,
			sub.Percentage(), sub.ViolationCount, sub.AutoSubmitted,
			sub.SubmittedAt.Format(time.RFC3339),
		})
		for _, v := range sub.Violations {
			violations = append(violations, []any{
				sub.StudentName, sub.StudentEmail, v.Kind.Label(), v.OccurredAt.Format(time.RFC3339),
			})
		}
	}

	for sheet, rows := range map[string][][]any{resultsSheet: results, violationsSheet: violations} {
		if err := writeRows(f, sheet, rows, header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
