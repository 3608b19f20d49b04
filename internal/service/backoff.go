package service

import (
	"math/rand"
	"time"
)

const (
	DefaultBackoffBase = 15 * time.Minute
	DefaultBackoffMax  = 24 * time.Hour
	defaultJitter      = 0.1
)

// Backoff computes exponential retry delays with up to 10% positive jitter.
type Backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64
	rand   func() float64
}

func NewBackoff(base, maxDelay time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	return &Backoff{
		base:   base,
		max:    maxDelay,
		jitter: defaultJitter,
		rand:   rand.Float64,
	}
}

// WithRand replaces the jitter source; f must return values in [0, 1).
func (b *Backoff) WithRand(f func() float64) *Backoff {
	b.rand = f
	return b
}

// Delay is base * 2^(attempt-1) * (1 + jitter), capped at max.
// attempt counts retries, starting at 1 for the first retry.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}

	d = time.Duration(float64(d) * (1 + b.rand()*b.jitter))
	if d > b.max {
		d = b.max
	}
	return d
}

// NextRetryAt schedules retry number retryCount.
func (b *Backoff) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(b.Delay(retryCount))
}
