package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

const DefaultBatchSize = 50

// ClaimJob claims due pending posts, including posts whose claim went stale, and dispatches them.
type ClaimJob struct {
	claims    service.ClaimService
	batchSize int
}

func NewClaimJob(claims service.ClaimService, batchSize int) *ClaimJob {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ClaimJob{
		claims:    claims,
		batchSize: batchSize,
	}
}

func (j *ClaimJob) Name() string { return "claim" }

func (j *ClaimJob) RunOnce(ctx context.Context) error {
	posts, err := j.claims.DueCandidates(ctx, j.batchSize)
	if err != nil {
		return err
	}

	dispatched := 0
	for _, post := range posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := j.claims.ClaimDue(ctx, post)
		if err != nil {
			slog.Error("failed to claim post", "post_id", post.ID, "error", err)
			continue
		}
		if ok {
			dispatched++
		}
	}

	if len(posts) > 0 {
		slog.Info("claim pass finished", "candidates", len(posts), "dispatched", dispatched)
	}
	return nil
}
