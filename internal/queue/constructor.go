package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

const timeoutMargin = 30 * time.Second

func NewPublishTask(payload PublishPostPayload) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublishPost, taskPayload), nil
}

func taskID(payload PublishPostPayload) string {
	return fmt.Sprintf("publish:%d:%s", payload.PostID, payload.ClaimToken)
}

// Dispatcher enqueues claimed posts onto the durable publish queue.
// Tasks are never retried by the queue; retry policy belongs to the publish orchestrator.
type Dispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

var _ service.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(client *asynq.Client, publishTimeout time.Duration) *Dispatcher {
	if publishTimeout <= 0 {
		publishTimeout = service.DefaultPublishTimeout
	}
	return &Dispatcher{
		client:  client,
		timeout: publishTimeout + timeoutMargin,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, postID int64, claimToken string) error {
	payload := PublishPostPayload{PostID: postID, ClaimToken: claimToken}

	task, err := NewPublishTask(payload)
	if err != nil {
		return err
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID(payload)),
		asynq.Queue(PublishQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(d.timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("publish task already enqueued", "post_id", postID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task enqueued", "post_id", postID)
	return nil
}
