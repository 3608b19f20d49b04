package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

// RetryJob moves posts whose backoff elapsed back to pending and claims them.
type RetryJob struct {
	claims    service.ClaimService
	batchSize int
}

func NewRetryJob(claims service.ClaimService, batchSize int) *RetryJob {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RetryJob{
		claims:    claims,
		batchSize: batchSize,
	}
}

func (j *RetryJob) Name() string { return "retry" }

func (j *RetryJob) RunOnce(ctx context.Context) error {
	posts, err := j.claims.DueRetries(ctx, j.batchSize)
	if err != nil {
		return err
	}

	dispatched := 0
	for _, post := range posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := j.claims.ClaimRetry(ctx, post)
		if err != nil {
			slog.Error("failed to claim retry", "post_id", post.ID, "retry_count", post.RetryCount, "error", err)
			continue
		}
		if ok {
			dispatched++
		}
	}

	if len(posts) > 0 {
		slog.Info("retry pass finished", "due", len(posts), "dispatched", dispatched)
	}
	return nil
}
