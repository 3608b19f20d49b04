package models

import "time"

type PostEventType string

const (
	EventCreated      PostEventType = "created"
	EventProcessing   PostEventType = "processing"
	EventClaimExpired PostEventType = "claim_expired"
	EventPending      PostEventType = "pending"
	EventReleased     PostEventType = "released"
	EventRateLimited  PostEventType = "rate_limited"
	EventRetry        PostEventType = "retry"
	EventPosted       PostEventType = "posted"
	EventFailed       PostEventType = "failed"
	EventCancelled    PostEventType = "cancelled"
)

type PostEvent struct {
	ID        int64             `db:"id" json:"id"`
	PostID    int64             `db:"post_id" json:"post_id"`
	EventType PostEventType     `db:"event_type" json:"event_type"`
	Message   string            `db:"message" json:"message"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	Timestamp time.Time         `db:"created_at" json:"timestamp"`
}
