package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type BrandLimitRepository interface {
	Get(ctx context.Context, brandID int64, destination models.Destination) (*models.BrandRateLimit, error)
	Upsert(ctx context.Context, l *models.BrandRateLimit) error
}

type brandLimitRepository struct {
	db *sql.DB
}

func NewBrandLimitRepository(db *sql.DB) BrandLimitRepository {
	return &brandLimitRepository{db: db}
}

func (r *brandLimitRepository) Get(ctx context.Context, brandID int64, destination models.Destination) (*models.BrandRateLimit, error) {
	query := `
		SELECT brand_id, destination, hourly_limit, daily_limit, updated_at
		FROM brand_rate_limits
		WHERE brand_id = $1 AND destination = $2
	`

	var l models.BrandRateLimit
	err := r.db.QueryRowContext(ctx, query, brandID, destination).Scan(&l.BrandID, &l.Destination, &l.HourlyLimit, &l.DailyLimit, &l.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &l, nil
}

func (r *brandLimitRepository) Upsert(ctx context.Context, l *models.BrandRateLimit) error {
	query := `
		INSERT INTO brand_rate_limits (brand_id, destination, hourly_limit, daily_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (brand_id, destination) DO UPDATE
		SET hourly_limit = EXCLUDED.hourly_limit,
			daily_limit = EXCLUDED.daily_limit,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, l.BrandID, l.Destination, l.HourlyLimit, l.DailyLimit)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
