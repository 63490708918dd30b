package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository persists one submission per student.
// Commit is first-writer-wins on the student_id unique key.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, student_id, student_name, student_email, answers, score, total_questions,
	violations, violation_count, auto_submitted, submitted_at`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		s          model.Submission
		answers    []byte
		violations []byte
	)
	err := row.Scan(&s.ID, &s.StudentID, &s.StudentName, &s.StudentEmail, &answers, &s.Score,
		&s.TotalQuestions, &violations, &s.ViolationCount, &s.AutoSubmitted, &s.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(violations, &s.Violations); err != nil {
		return nil, fmt.Errorf("decode violations: %w", err)
	}
	return &s, nil
}

// GetByStudent returns the student's submission or model.ErrSubmissionNotFound.
func (r *SubmissionRepository) GetByStudent(ctx context.Context, studentID int) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE student_id = $1`, studentID))
}

// Commit inserts sub unless the student already has a submission, in which case the
// existing row is returned untouched with created=false.
func (r *SubmissionRepository) Commit(ctx context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return nil, false, fmt.Errorf("encode answers: %w", err)
	}
	violationList := sub.Violations
	if violationList == nil {
		violationList = []model.ViolationRecord{}
	}
	violations, err := json.Marshal(violationList)
	if err != nil {
		return nil, false, fmt.Errorf("encode violations: %w", err)
	}

	stored := *sub
	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions (student_id, student_name, student_email, answers, score, total_questions,
		                          violations, violation_count, auto_submitted, submitted_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7::jsonb, $8, $9, $10)
		 ON CONFLICT (student_id) DO NOTHING
		 RETURNING id`,
		sub.StudentID, sub.StudentName, sub.StudentEmail, string(answers), sub.Score, sub.TotalQuestions,
		string(violations), sub.ViolationCount, sub.AutoSubmitted, sub.SubmittedAt,
	).Scan(&stored.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetByStudent(ctx, sub.StudentID)
		if err != nil {
			return nil, false, fmt.Errorf("fetch existing submission: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert submission: %w", err)
	}
	return &stored, true, nil
}

// List returns every submission, newest first.
func (r *SubmissionRepository) List(ctx context.Context) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// DeleteByStudent removes a student's submission and live violation log so they can retake
// the exam. Returns model.ErrSubmissionNotFound when there was nothing to delete.
func (r *SubmissionRepository) DeleteByStudent(ctx context.Context, studentID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM submissions WHERE student_id = $1`, studentID)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSubmissionNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM violation_events WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete violation events: %w", err)
	}
	return tx.Commit(ctx)
}
