package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (j *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding publish task: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PostID == 0 || payload.ClaimToken == "" {
		return fmt.Errorf("publish task without post id or claim token: %w", asynq.SkipRetry)
	}

	// a store error leaves the claim in place; stale claim recovery picks the post up again
	if err := j.ps.Process(ctx, payload.PostID, payload.ClaimToken); err != nil {
		slog.Error("publish task failed", "post_id", payload.PostID, "error", err)
		return err
	}
	return nil
}
