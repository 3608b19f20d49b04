package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/redis/go-redis/v9"
)

// incrementWindow restarts a counter when its stored window start differs, then adds one to both.
var incrementWindow = redis.NewScript(`
local key = KEYS[1]
if redis.call('HGET', key, 'hour_start') ~= ARGV[1] then
	redis.call('HSET', key, 'hour_start', ARGV[1], 'count_hour', 0)
end
if redis.call('HGET', key, 'day_start') ~= ARGV[2] then
	redis.call('HSET', key, 'day_start', ARGV[2], 'count_day', 0)
end
redis.call('HINCRBY', key, 'count_hour', 1)
redis.call('HINCRBY', key, 'count_day', 1)
return 1
`)

type redisRateWindowRepository struct {
	rdb redis.UniversalClient
}

// NewRedisRateWindowRepository keeps each window in the hash rw:{brand}:{destination}.
func NewRedisRateWindowRepository(rdb redis.UniversalClient) RateWindowRepository {
	return &redisRateWindowRepository{rdb: rdb}
}

func rateWindowKey(brandID int64, destination models.Destination) string {
	return fmt.Sprintf("rw:%d:%s", brandID, destination)
}

func (r *redisRateWindowRepository) Get(ctx context.Context, brandID int64, destination models.Destination) (*models.RateWindow, error) {
	fields, err := r.rdb.HGetAll(ctx, rateWindowKey(brandID, destination)).Result()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	w := &models.RateWindow{BrandID: brandID, Destination: destination}

	if w.CountHour, err = atoiField(fields, "count_hour"); err != nil {
		return nil, err
	}
	if w.CountDay, err = atoiField(fields, "count_day"); err != nil {
		return nil, err
	}
	if w.HourWindowStart, err = unixField(fields, "hour_start"); err != nil {
		return nil, err
	}
	if w.DayWindowStart, err = unixField(fields, "day_start"); err != nil {
		return nil, err
	}

	return w, nil
}

func (r *redisRateWindowRepository) Save(ctx context.Context, w *models.RateWindow) error {
	err := r.rdb.HSet(ctx, rateWindowKey(w.BrandID, w.Destination),
		"count_hour", w.CountHour,
		"count_day", w.CountDay,
		"hour_start", w.HourWindowStart.Unix(),
		"day_start", w.DayWindowStart.Unix(),
	).Err()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *redisRateWindowRepository) Increment(ctx context.Context, brandID int64, destination models.Destination, hourStart, dayStart time.Time) error {
	err := incrementWindow.Run(ctx, r.rdb,
		[]string{rateWindowKey(brandID, destination)},
		strconv.FormatInt(hourStart.Unix(), 10),
		strconv.FormatInt(dayStart.Unix(), 10),
	).Err()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("rate window field %s: %w", name, err)
	}
	return n, nil
}

func unixField(fields map[string]string, name string) (time.Time, error) {
	v, ok := fields[name]
	if !ok {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("rate window field %s: %w", name, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}
