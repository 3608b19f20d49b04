package models

import "time"

type PostTemplate struct {
	Destination Destination `json:"destination"`
	AccountID   string      `json:"account_id,omitempty"`
	ContentID   string      `json:"content_id"`
	Caption     string      `json:"caption"`
	Media       []Media     `json:"media"`
	Hashtags    []string    `json:"hashtags"`
	Mentions    []string    `json:"mentions"`
	Links       []string    `json:"links"`
	MaxRetries  int         `json:"max_retries,omitempty"`
}

type RecurrencePlan struct {
	ID               int64        `db:"id" json:"id"`
	BrandID          int64        `db:"brand_id" json:"brand_id"`
	Rule             string       `db:"rule" json:"rule"`
	Timezone         string       `db:"timezone" json:"timezone"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	EndAt            *time.Time   `db:"end_at" json:"end_at,omitempty"`
	LastGeneratedAt  *time.Time   `db:"last_generated_at" json:"last_generated_at,omitempty"`
	NextGenerationAt *time.Time   `db:"next_generation_at" json:"next_generation_at,omitempty"`
	Template         PostTemplate `db:"template" json:"template"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// RecurrenceInstance links a plan to a post it generated.
type RecurrenceInstance struct {
	ID          int64     `db:"id" json:"id"`
	PlanID      int64     `db:"plan_id" json:"plan_id"`
	PostID      int64     `db:"post_id" json:"post_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
