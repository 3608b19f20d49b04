package memstore

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type windowStore struct {
	s *Store
}

func (w *windowStore) Get(_ context.Context, brandID int64, destination models.Destination) (*models.RateWindow, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	win, ok := w.s.windows[windowKey{brandID, destination}]
	if !ok {
		return nil, nil
	}
	return &win, nil
}

func (w *windowStore) Save(_ context.Context, win *models.RateWindow) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	w.s.windows[windowKey{win.BrandID, win.Destination}] = *win
	return nil
}

func (w *windowStore) Increment(_ context.Context, brandID int64, destination models.Destination, hourStart, dayStart time.Time) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	key := windowKey{brandID, destination}
	win, ok := w.s.windows[key]
	if !ok {
		win = models.RateWindow{BrandID: brandID, Destination: destination}
	}
	if !win.HourWindowStart.Equal(hourStart) {
		win.HourWindowStart = hourStart
		win.CountHour = 0
	}
	if !win.DayWindowStart.Equal(dayStart) {
		win.DayWindowStart = dayStart
		win.CountDay = 0
	}
	win.CountHour++
	win.CountDay++
	w.s.windows[key] = win
	return nil
}

type limitStore struct {
	s *Store
}

func (l *limitStore) Get(_ context.Context, brandID int64, destination models.Destination) (*models.BrandRateLimit, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	limit, ok := l.s.limits[windowKey{brandID, destination}]
	if !ok {
		return nil, nil
	}
	return &limit, nil
}

func (l *limitStore) Upsert(_ context.Context, limit *models.BrandRateLimit) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	cp := *limit
	cp.UpdatedAt = time.Now().UTC()
	l.s.limits[windowKey{limit.BrandID, limit.Destination}] = cp
	return nil
}
