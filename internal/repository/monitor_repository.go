package repository

import (
	"context"
	"encoding/json"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MonitorRepository provides data access for the teacher's live monitor.
// It combines PostgreSQL (persisted violation log, submission count) and Redis (live events).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ViolationCounts returns the number of persisted violation events per student.
func (r *MonitorRepository) ViolationCounts(ctx context.Context) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*) FROM violation_events GROUP BY student_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var n int64
		if err := rows.Scan(&sid, &n); err != nil {
			return nil, err
		}
		counts[sid] = n
	}
	return counts, rows.Err()
}

// SubmittedCount returns how many students have submitted.
func (r *MonitorRepository) SubmittedCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n)
	return n, err
}

// Publish broadcasts a monitor event to every subscribed teacher.
func (r *MonitorRepository) Publish(ctx context.Context, ev model.MonitorEvent) error {
	return publishJSON(ctx, r.rdb, config.CacheKey.MonitorChannel(), ev)
}

// Subscribe opens a subscription to the monitor channel. The caller closes it.
func (r *MonitorRepository) Subscribe(ctx context.Context) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.MonitorChannel())
}

func publishJSON(ctx context.Context, rdb *redis.Client, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, channel, data).Err()
}
