package model

import (
	"errors"
	"time"
)

// Submission is the single, immutable result of a student's exam.
type Submission struct {
	ID             int64             `json:"id"`
	StudentID      int               `json:"student_id"`
	StudentName    string            `json:"student_name"`
	StudentEmail   string            `json:"student_email"`
	Answers        map[int]Option    `json:"answers"`
	Score          int               `json:"score"`
	TotalQuestions int               `json:"total_questions"`
	Violations     []ViolationRecord `json:"violations"`
	ViolationCount int               `json:"violation_count"`
	AutoSubmitted  bool              `json:"auto_submitted"`
	SubmittedAt    time.Time         `json:"submitted_at"`
}

// Percentage returns the score as a whole percentage of the question count.
func (s *Submission) Percentage() int {
	if s.TotalQuestions == 0 {
		return 0
	}
	return s.Score * 100 / s.TotalQuestions
}

// SubmissionSummary is the row shape of the teacher's submission list.
type SubmissionSummary struct {
	StudentID      int       `json:"student_id"`
	StudentName    string    `json:"student_name"`
	StudentEmail   string    `json:"student_email"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     int       `json:"percentage"`
	ViolationCount int       `json:"violation_count"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Summary projects the submission onto its list row.
func (s *Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		StudentID:      s.StudentID,
		StudentName:    s.StudentName,
		StudentEmail:   s.StudentEmail,
		Score:          s.Score,
		TotalQuestions: s.TotalQuestions,
		Percentage:     s.Percentage(),
		ViolationCount: s.ViolationCount,
		AutoSubmitted:  s.AutoSubmitted,
		SubmittedAt:    s.SubmittedAt,
	}
}

// ReviewedAnswer pairs a question with the student's choice.
type ReviewedAnswer struct {
	QuestionID    int       `json:"question_id"`
	Text          string    `json:"text"`
	Options       [4]string `json:"options"`
	Selected      Option    `json:"selected,omitempty"`
	CorrectOption Option    `json:"correct_option"`
	IsCorrect     bool      `json:"is_correct"`
}

// ReviewedViolation is a violation record with its reviewer label.
type ReviewedViolation struct {
	Kind       ViolationKind `json:"kind"`
	Label      string        `json:"label"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// SubmissionReview is the teacher's detailed view of one submission.
type SubmissionReview struct {
	SubmissionSummary
	Answers    []ReviewedAnswer    `json:"answers"`
	Violations []ReviewedViolation `json:"violations"`
}

// ErrSubmissionNotFound is returned by stores when a student has not submitted.
var ErrSubmissionNotFound = errors.New("submission not found")
