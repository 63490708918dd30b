package repository

import (
	"context"
	"fmt"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingRepository stores key/value application settings.
type SettingRepository struct {
	pool *pgxpool.Pool
}

func NewSettingRepository(pool *pgxpool.Pool) *SettingRepository {
	return &SettingRepository{pool: pool}
}

// GetMany returns the settings present among keys.
func (r *SettingRepository) GetMany(ctx context.Context, keys ...string) (map[string]model.AppSetting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, value, updated_at FROM app_settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]model.AppSetting, len(keys))
	for rows.Next() {
		var s model.AppSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings[s.Key] = s
	}
	return settings, rows.Err()
}

// UpsertMany writes all values in one transaction.
func (r *SettingRepository) UpsertMany(ctx context.Context, values map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for key, value := range values {
		if _, err := tx.Exec(ctx,
			`INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

// Delete removes the given keys.
func (r *SettingRepository) Delete(ctx context.Context, keys ...string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM app_settings WHERE key = ANY($1)`, keys)
	return err
}
