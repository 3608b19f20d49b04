package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

// RateWindowRepository persists fixed-window publish counters per (brand, destination).
type RateWindowRepository interface {
	Get(ctx context.Context, brandID int64, destination models.Destination) (*models.RateWindow, error)
	Save(ctx context.Context, w *models.RateWindow) error
	// Increment adds one publish to both counters atomically, restarting any counter
	// whose stored window start differs from the given one.
	Increment(ctx context.Context, brandID int64, destination models.Destination, hourStart, dayStart time.Time) error
}

type rateWindowRepository struct {
	db *sql.DB
}

func NewRateWindowRepository(db *sql.DB) RateWindowRepository {
	return &rateWindowRepository{db: db}
}

func (r *rateWindowRepository) Get(ctx context.Context, brandID int64, destination models.Destination) (*models.RateWindow, error) {
	query := `
		SELECT brand_id, destination, count_hour, count_day, hour_window_start, day_window_start
		FROM rate_windows
		WHERE brand_id = $1 AND destination = $2
	`

	var w models.RateWindow
	err := r.db.QueryRowContext(ctx, query, brandID, destination).Scan(
		&w.BrandID, &w.Destination, &w.CountHour, &w.CountDay, &w.HourWindowStart, &w.DayWindowStart)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &w, nil
}

func (r *rateWindowRepository) Save(ctx context.Context, w *models.RateWindow) error {
	query := `
		INSERT INTO rate_windows (brand_id, destination, count_hour, count_day, hour_window_start, day_window_start)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (brand_id, destination) DO UPDATE
		SET count_hour = EXCLUDED.count_hour,
			count_day = EXCLUDED.count_day,
			hour_window_start = EXCLUDED.hour_window_start,
			day_window_start = EXCLUDED.day_window_start
	`
	_, err := r.db.ExecContext(ctx, query, w.BrandID, w.Destination, w.CountHour, w.CountDay, w.HourWindowStart, w.DayWindowStart)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rateWindowRepository) Increment(ctx context.Context, brandID int64, destination models.Destination, hourStart, dayStart time.Time) error {
	query := `
		INSERT INTO rate_windows (brand_id, destination, count_hour, count_day, hour_window_start, day_window_start)
		VALUES ($1, $2, 1, 1, $3, $4)
		ON CONFLICT (brand_id, destination) DO UPDATE
		SET count_hour = CASE WHEN rate_windows.hour_window_start = EXCLUDED.hour_window_start
				THEN rate_windows.count_hour + 1 ELSE 1 END,
			count_day = CASE WHEN rate_windows.day_window_start = EXCLUDED.day_window_start
				THEN rate_windows.count_day + 1 ELSE 1 END,
			hour_window_start = EXCLUDED.hour_window_start,
			day_window_start = EXCLUDED.day_window_start
	`
	_, err := r.db.ExecContext(ctx, query, brandID, destination, hourStart, dayStart)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
