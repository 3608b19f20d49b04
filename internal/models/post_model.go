package models

import "time"

type Destination string

const (
	DestinationFacebook  Destination = "facebook"
	DestinationInstagram Destination = "instagram"
	DestinationTwitter   Destination = "twitter"
	DestinationLinkedIn  Destination = "linkedin"
	DestinationTiktok    Destination = "tiktok"
	DestinationYoutube   Destination = "youtube"
	DestinationPinterest Destination = "pinterest"
	DestinationThreads   Destination = "threads"
)

type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusQueued     PostStatus = "queued" // pending with scheduled_at in the future
	PostStatusProcessing PostStatus = "processing"
	PostStatusPosted     PostStatus = "posted"
	PostStatusRetry      PostStatus = "retry"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

const DefaultMaxRetries = 3

type Media struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

type Post struct {
	ID                int64       `db:"id" json:"id"`
	BrandID           int64       `db:"brand_id" json:"brand_id"`
	Destination       Destination `db:"destination" json:"destination"`
	AccountID         string      `db:"account_id" json:"account_id,omitempty"`
	ContentID         string      `db:"content_id" json:"content_id"`
	PlanID            *int64      `db:"plan_id" json:"plan_id,omitempty"`
	Caption           string      `db:"caption" json:"caption"`
	Media             []Media     `db:"media" json:"media"`
	Hashtags          []string    `db:"hashtags" json:"hashtags"`
	Mentions          []string    `db:"mentions" json:"mentions"`
	Links             []string    `db:"links" json:"links"`
	ScheduledAt       *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status            PostStatus  `db:"status" json:"status"`
	ProviderPostID    string      `db:"provider_post_id" json:"provider_post_id,omitempty"`
	ProviderAccountID string      `db:"provider_account_id" json:"provider_account_id,omitempty"`
	RetryCount        int         `db:"retry_count" json:"retry_count"`
	MaxRetries        int         `db:"max_retries" json:"max_retries"`
	NextRetryAt       *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError         string      `db:"last_error" json:"last_error,omitempty"`
	ErrorLog          []string    `db:"error_log" json:"error_log,omitempty"`
	ClaimToken        *string     `db:"claim_token" json:"-"`
	ClaimedAt         *time.Time  `db:"claimed_at" json:"claimed_at,omitempty"`
	PostedAt          *time.Time  `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further attempt can happen for the post.
func (p *Post) IsTerminal() bool {
	switch p.Status {
	case PostStatusPosted, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// HoldsClaim reports whether token is the post's current claim.
func (p *Post) HoldsClaim(token string) bool {
	return p.ClaimToken != nil && *p.ClaimToken == token
}

// InitialStatus is pending for immediate posts and queued for posts scheduled after now.
func InitialStatus(scheduledAt *time.Time, now time.Time) PostStatus {
	if scheduledAt != nil && scheduledAt.After(now) {
		return PostStatusQueued
	}
	return PostStatusPending
}
