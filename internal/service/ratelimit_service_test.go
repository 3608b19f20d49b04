package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitCreatesWindowLazily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	decision, err := h.rates.Check(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.DefaultHourlyLimit, decision.HourlyLimit)
	assert.Equal(t, models.DefaultDailyLimit, decision.DailyLimit)

	w, err := h.store.RateWindows().Get(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC), w.HourWindowStart)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), w.DayWindowStart)
}

func TestRateLimitDeniesAtHourlyLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.BrandLimits().Upsert(ctx, &models.BrandRateLimit{
		BrandID: 1, Destination: models.DestinationFacebook, HourlyLimit: 2, DailyLimit: 50,
	}))

	for i := 0; i < 2; i++ {
		decision, err := h.rates.Check(ctx, 1, models.DestinationFacebook)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.NoError(t, h.rates.Commit(ctx, 1, models.DestinationFacebook))
	}

	decision, err := h.rates.Check(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 2, decision.CountHour)
	assert.Equal(t, time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC), decision.ResetAt)

	other, err := h.rates.Check(ctx, 2, models.DestinationFacebook)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "windows are per brand")
}

func TestRateLimitWindowReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.RateWindows().Save(ctx, &models.RateWindow{
		BrandID:         1,
		Destination:     models.DestinationFacebook,
		CountHour:       models.DefaultHourlyLimit,
		CountDay:        20,
		HourWindowStart: hourStart(testNow),
		DayWindowStart:  dayStart(testNow),
	}))

	decision, err := h.rates.Check(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	h.clock.Advance(time.Hour)

	decision, err = h.rates.Check(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.CountHour)
	assert.Equal(t, 20, decision.CountDay, "day window has not elapsed")

	w, err := h.store.RateWindows().Get(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.Equal(t, 0, w.CountHour, "reset is persisted")
	assert.Equal(t, hourStart(h.clock.Now()), w.HourWindowStart)
}

func TestRateLimitDailyResetWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.RateWindows().Save(ctx, &models.RateWindow{
		BrandID:         1,
		Destination:     models.DestinationFacebook,
		CountHour:       models.DefaultHourlyLimit,
		CountDay:        models.DefaultDailyLimit,
		HourWindowStart: hourStart(testNow),
		DayWindowStart:  dayStart(testNow),
	}))

	decision, err := h.rates.Check(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC), decision.ResetAt)
}

func TestRateLimitCommitAcrossHourBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rates.Commit(ctx, 1, models.DestinationFacebook))
	require.NoError(t, h.rates.Commit(ctx, 1, models.DestinationFacebook))

	h.clock.Advance(time.Hour)
	require.NoError(t, h.rates.Commit(ctx, 1, models.DestinationFacebook))

	w, err := h.store.RateWindows().Get(ctx, 1, models.DestinationFacebook)
	require.NoError(t, err)
	assert.Equal(t, 1, w.CountHour)
	assert.Equal(t, 3, w.CountDay)
}
