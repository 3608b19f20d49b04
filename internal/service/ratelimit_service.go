package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
)

type RateDecision struct {
	Allowed     bool
	ResetAt     time.Time
	CountHour   int
	CountDay    int
	HourlyLimit int
	DailyLimit  int
}

type RateLimitService interface {
	Check(ctx context.Context, brandID int64, destination models.Destination) (*RateDecision, error)
	Commit(ctx context.Context, brandID int64, destination models.Destination) error
}

type rateLimitService struct {
	windows       repository.RateWindowRepository
	limits        repository.BrandLimitRepository
	defaultHourly int
	defaultDaily  int
	clock         Clock
}

func NewRateLimitService(
	windows repository.RateWindowRepository,
	limits repository.BrandLimitRepository,
	defaultHourly, defaultDaily int,
	clock Clock) RateLimitService {
	if defaultHourly <= 0 {
		defaultHourly = models.DefaultHourlyLimit
	}
	if defaultDaily <= 0 {
		defaultDaily = models.DefaultDailyLimit
	}
	return &rateLimitService{
		windows:       windows,
		limits:        limits,
		defaultHourly: defaultHourly,
		defaultDaily:  defaultDaily,
		clock:         clock,
	}
}

func hourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *rateLimitService) quota(ctx context.Context, brandID int64, destination models.Destination) (int, int, error) {
	l, err := s.limits.Get(ctx, brandID, destination)
	if err != nil {
		return 0, 0, err
	}

	hourly, daily := s.defaultHourly, s.defaultDaily
	if l != nil {
		if l.HourlyLimit > 0 {
			hourly = l.HourlyLimit
		}
		if l.DailyLimit > 0 {
			daily = l.DailyLimit
		}
	}
	return hourly, daily, nil
}

func (s *rateLimitService) Check(ctx context.Context, brandID int64, destination models.Destination) (*RateDecision, error) {
	now := s.clock.Now()

	hourly, daily, err := s.quota(ctx, brandID, destination)
	if err != nil {
		return nil, err
	}

	w, err := s.windows.Get(ctx, brandID, destination)
	if err != nil {
		return nil, err
	}

	dirty := false
	if w == nil {
		w = &models.RateWindow{
			BrandID:         brandID,
			Destination:     destination,
			HourWindowStart: hourStart(now),
			DayWindowStart:  dayStart(now),
		}
		dirty = true
	}
	if !now.Before(w.HourWindowStart.Add(time.Hour)) {
		w.CountHour = 0
		w.HourWindowStart = hourStart(now)
		dirty = true
	}
	if !now.Before(w.DayWindowStart.Add(24 * time.Hour)) {
		w.CountDay = 0
		w.DayWindowStart = dayStart(now)
		dirty = true
	}
	if dirty {
		if err := s.windows.Save(ctx, w); err != nil {
			return nil, err
		}
	}

	decision := &RateDecision{
		Allowed:     true,
		CountHour:   w.CountHour,
		CountDay:    w.CountDay,
		HourlyLimit: hourly,
		DailyLimit:  daily,
	}

	if w.CountHour >= hourly {
		decision.Allowed = false
		decision.ResetAt = w.HourWindowStart.Add(time.Hour)
	}
	if w.CountDay >= daily {
		decision.Allowed = false
		if reset := w.DayWindowStart.Add(24 * time.Hour); reset.After(decision.ResetAt) {
			decision.ResetAt = reset
		}
	}

	if !decision.Allowed {
		metrics.RateLimitDenials.WithLabelValues(string(destination)).Inc()
		slog.Info("rate limit reached", "brand_id", brandID, "destination", destination,
			"count_hour", w.CountHour, "count_day", w.CountDay, "reset_at", decision.ResetAt)
	}

	return decision, nil
}

func (s *rateLimitService) Commit(ctx context.Context, brandID int64, destination models.Destination) error {
	now := s.clock.Now()
	return s.windows.Increment(ctx, brandID, destination, hourStart(now), dayStart(now))
}
