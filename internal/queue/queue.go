package queue

import (
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

const (
	TaskTypePublishPost = "publish:post"
	PublishQueue        = "publish"
)

type PublishPostPayload struct {
	PostID     int64  `json:"post_id"`
	ClaimToken string `json:"claim_token"`
}

// Queue is the worker side: it hands each publish task to the orchestrator.
type Queue struct {
	ps service.PublishService
}

func NewQueue(ps service.PublishService) *Queue {
	return &Queue{
		ps: ps,
	}
}

func (j *Queue) ServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, j.HandlePublishPostTask)
	return mux
}

func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{PublishQueue: 1},
	})
}
