package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
)

// watermarkRepository keeps watermarks in the global_metadata table.
type watermarkRepository struct {
	BaseRepository
}

func NewWatermarkRepository(base BaseRepository) repository.WatermarkRepository {
	return &watermarkRepository{base}
}

func (r *watermarkRepository) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM global_metadata WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		r.observe("get_watermark", start, nil)
		return "", false, nil
	}
	r.observe("get_watermark", start, err)
	if err != nil {
		return "", false, fmt.Errorf("failed to get watermark %q: %w", key, err)
	}
	return value, true, nil
}

func (r *watermarkRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO global_metadata (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, key, value)
	r.observe("set_watermark", start, err)
	if err != nil {
		return fmt.Errorf("failed to set watermark %q: %w", key, err)
	}
	return nil
}

func (r *watermarkRepository) List(ctx context.Context) ([]*model.Watermark, error) {
	var out []*model.Watermark
	err := r.db.SelectContext(ctx, &out, `SELECT key, value, updated_at FROM global_metadata ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}
	return out, nil
}

func (r *watermarkRepository) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM global_metadata WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete watermark %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *watermarkRepository) Clear(ctx context.Context) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM global_metadata`); err != nil {
			return fmt.Errorf("failed to clear watermarks: %w", err)
		}
		return nil
	})
}
