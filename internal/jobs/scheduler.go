package job

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Runner is one pass of a background loop.
type Runner interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler runs each registered loop on its own interval. A pass that is still
// running when the next tick fires is skipped.
type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	entries []cron.EntryID
}

func NewScheduler(ctx context.Context, logger *log.Logger) *Scheduler {
	cronLogger := cron.VerbosePrintfLogger(logger)
	return &Scheduler{
		ctx: ctx,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

func (s *Scheduler) Every(interval time.Duration, r Runner) error {
	id, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval), cron.FuncJob(func() {
		s.run(r)
	}))
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", r.Name(), err)
	}
	s.entries = append(s.entries, id)
	return nil
}

func (s *Scheduler) run(r Runner) {
	if s.ctx.Err() != nil {
		return
	}
	done := metrics.TrackJob(r.Name())
	defer done()

	if err := r.RunOnce(s.ctx); err != nil {
		slog.Error("job pass failed", "job", r.Name(), "error", err)
	}
}

// Start begins the schedule and kicks off one pass of every loop immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, id := range s.entries {
		go s.cron.Entry(id).WrappedJob.Run()
	}
}

// Stop stops scheduling and waits for running passes to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
