package repository

import (
	"context"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationEventRepository writes the live violation log used by the teacher monitor.
type ViolationEventRepository struct {
	pool *pgxpool.Pool
}

// NewViolationEventRepository creates a new ViolationEventRepository.
func NewViolationEventRepository(pool *pgxpool.Pool) *ViolationEventRepository {
	return &ViolationEventRepository{pool: pool}
}

// InsertBatch bulk-loads events with COPY. Either all rows land or none do.
func (r *ViolationEventRepository) InsertBatch(ctx context.Context, events []model.ViolationEvent) error {
	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []any{ev.StudentID, string(ev.Kind), ev.OccurredAt})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		[]string{"student_id", "kind", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single event.
func (r *ViolationEventRepository) Insert(ctx context.Context, ev model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (student_id, kind, occurred_at) VALUES ($1, $2, $3)`,
		ev.StudentID, string(ev.Kind), ev.OccurredAt,
	)
	return err
}
