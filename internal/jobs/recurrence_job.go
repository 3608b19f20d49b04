package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

const (
	DefaultLookahead      = time.Hour
	maxGenerationsPerPlan = 10
	planBatchSize         = 100
)

// RecurrenceJob generates posts for plans whose next occurrence falls within the lookahead.
type RecurrenceJob struct {
	recurrences service.RecurrenceService
	lookahead   time.Duration
	clock       service.Clock
}

func NewRecurrenceJob(recurrences service.RecurrenceService, lookahead time.Duration, clock service.Clock) *RecurrenceJob {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &RecurrenceJob{
		recurrences: recurrences,
		lookahead:   lookahead,
		clock:       clock,
	}
}

func (j *RecurrenceJob) Name() string { return "recurrence" }

func (j *RecurrenceJob) RunOnce(ctx context.Context) error {
	plans, err := j.recurrences.DuePlans(ctx, j.lookahead, planBatchSize)
	if err != nil {
		return err
	}

	horizon := j.clock.Now().Add(j.lookahead)
	generated := 0

	for _, plan := range plans {
		for i := 0; i < maxGenerationsPerPlan; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			post, err := j.recurrences.Generate(ctx, plan)
			if err != nil {
				slog.Error("failed to generate recurring post", "plan_id", plan.ID, "error", err)
				break
			}
			if post == nil {
				break
			}
			generated++

			if plan.NextGenerationAt == nil || plan.NextGenerationAt.After(horizon) {
				break
			}
		}
	}

	if generated > 0 {
		slog.Info("recurrence pass finished", "plans", len(plans), "generated", generated)
	}
	return nil
}
