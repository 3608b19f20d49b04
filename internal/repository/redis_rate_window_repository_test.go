package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisWindows(t *testing.T) (RateWindowRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRateWindowRepository(rdb), mr
}

func TestRedisRateWindowMissing(t *testing.T) {
	repo, _ := newRedisWindows(t)

	w, err := repo.Get(context.Background(), 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestRedisRateWindowSaveAndGet(t *testing.T) {
	repo, mr := newRedisWindows(t)
	ctx := context.Background()
	hour := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.RateWindow{
		BrandID: 1, Destination: models.DestinationFacebook, CountHour: 2, CountDay: 5,
		HourWindowStart: hour, DayWindowStart: day,
	}))
	assert.True(t, mr.Exists("rw:1:facebook"))

	w, err := repo.Get(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2, w.CountHour)
	assert.Equal(t, 5, w.CountDay)
	assert.True(t, w.HourWindowStart.Equal(hour))
	assert.True(t, w.DayWindowStart.Equal(day))
}

func TestRedisRateWindowIncrement(t *testing.T) {
	repo, _ := newRedisWindows(t)
	ctx := context.Background()
	hour := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Increment(ctx, 1, models.DestinationTwitter, hour, day))
	require.NoError(t, repo.Increment(ctx, 1, models.DestinationTwitter, hour, day))

	w, err := repo.Get(ctx, 1, models.DestinationTwitter)
	require.NoError(t, err)
	assert.Equal(t, 2, w.CountHour)
	assert.Equal(t, 2, w.CountDay)

	// next hour restarts only the hourly counter
	require.NoError(t, repo.Increment(ctx, 1, models.DestinationTwitter, hour.Add(time.Hour), day))

	w, err = repo.Get(ctx, 1, models.DestinationTwitter)
	require.NoError(t, err)
	assert.Equal(t, 1, w.CountHour)
	assert.Equal(t, 3, w.CountDay)
	assert.True(t, w.HourWindowStart.Equal(hour.Add(time.Hour)))
}
