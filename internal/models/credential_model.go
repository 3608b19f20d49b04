package models

import (
	"time"
)

type OAuthCredential struct {
	ID              int64       `db:"id" json:"id"`
	BrandID         int64       `db:"brand_id" json:"brand_id"`
	Destination     Destination `db:"destination" json:"destination"`
	AccountID       string      `db:"account_id" json:"account_id"`
	AccessToken     string      `db:"access_token" json:"-"`
	RefreshToken    string      `db:"refresh_token" json:"-"`
	ExpiresAt       time.Time   `db:"expires_at" json:"expires_at"`
	IsValid         bool        `db:"is_valid" json:"is_valid"`
	InvalidReason   string      `db:"invalid_reason" json:"invalid_reason,omitempty"`
	LastRefreshedAt *time.Time  `db:"last_refreshed_at" json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the access token can no longer be used at now.
// A zero ExpiresAt marks a token that never expires.
func (c *OAuthCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}
