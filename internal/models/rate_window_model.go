package models

import "time"

const (
	DefaultHourlyLimit = 10
	DefaultDailyLimit  = 100
)

type RateWindow struct {
	BrandID         int64       `db:"brand_id" json:"brand_id"`
	Destination     Destination `db:"destination" json:"destination"`
	CountHour       int         `db:"count_hour" json:"count_hour"`
	CountDay        int         `db:"count_day" json:"count_day"`
	HourWindowStart time.Time   `db:"hour_window_start" json:"hour_window_start"`
	DayWindowStart  time.Time   `db:"day_window_start" json:"day_window_start"`
}

// BrandRateLimit overrides the default publish quotas of one brand on one destination.
type BrandRateLimit struct {
	BrandID     int64       `db:"brand_id" json:"brand_id"`
	Destination Destination `db:"destination" json:"destination"`
	HourlyLimit int         `db:"hourly_limit" json:"hourly_limit"`
	DailyLimit  int         `db:"daily_limit" json:"daily_limit"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
