package transfer

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type PostStatusResponse struct {
	ID             int64              `json:"id"`
	Destination    models.Destination `json:"destination"`
	Status         models.PostStatus  `json:"status"`
	ProviderPostID string             `json:"provider_post_id,omitempty"`
	RetryCount     int                `json:"retry_count"`
	MaxRetries     int                `json:"max_retries"`
	LastError      string             `json:"last_error,omitempty"`
	NextRetryAt    *time.Time         `json:"next_retry_at,omitempty"`
	ScheduledAt    *time.Time         `json:"scheduled_at,omitempty"`
	PostedAt       *time.Time         `json:"posted_at,omitempty"`
}

func NewPostStatusResponse(p *models.Post) PostStatusResponse {
	return PostStatusResponse{
		ID:             p.ID,
		Destination:    p.Destination,
		Status:         p.Status,
		ProviderPostID: p.ProviderPostID,
		RetryCount:     p.RetryCount,
		MaxRetries:     p.MaxRetries,
		LastError:      p.LastError,
		NextRetryAt:    p.NextRetryAt,
		ScheduledAt:    p.ScheduledAt,
		PostedAt:       p.PostedAt,
	}
}

type PostEventResponse struct {
	EventType models.PostEventType `json:"event_type"`
	Message   string               `json:"message,omitempty"`
	Metadata  map[string]string    `json:"metadata,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (r CancelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

type PublishResponse struct {
	PostID     int64             `json:"post_id"`
	Status     models.PostStatus `json:"status"`
	Dispatched bool              `json:"dispatched"`
}
