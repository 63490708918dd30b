package repository

import (
	"context"
	"fmt"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListAll retrieves the full question set ordered by id.
func (r *QuestionRepository) ListAll(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, options, correct_option FROM questions ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options []string
		)
		if err := rows.Scan(&q.ID, &q.Text, &options, &q.CorrectOption); err != nil {
			return nil, err
		}
		if len(options) != len(q.Options) {
			return nil, fmt.Errorf("question %d has %d options", q.ID, len(options))
		}
		copy(q.Options[:], options)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert inserts a question or replaces the one with the same id.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, question_text, options, correct_option)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET question_text = EXCLUDED.question_text,
		     options = EXCLUDED.options,
		     correct_option = EXCLUDED.correct_option`,
		q.ID, q.Text, q.Options[:], q.CorrectOption,
	)
	return err
}
