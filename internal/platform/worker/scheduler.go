package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a periodic job body. Errors are logged, not retried; the next tick
// runs it again anyway.
type Job func(ctx context.Context) error

type scheduledJob struct {
	name     string
	interval time.Duration
	run      Job
}

// Scheduler runs registered jobs on fixed intervals. It replaces an external
// cron: the sweep jobs for idle sessions and expired credentials hang off it.
type Scheduler struct {
	logger zerolog.Logger
	jobs   []scheduledJob
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers a job to run on the given interval. Jobs also run once at
// startup so a restarted server does not wait a full interval to catch up.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) {
	s.jobs = append(s.jobs, scheduledJob{name: name, interval: interval, run: job})
}

// Run starts every job loop and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j scheduledJob) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j scheduledJob) {
	s.runOnce(ctx, j)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j scheduledJob) {
	start := time.Now()
	if err := j.run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Msg("scheduled job failed")
		return
	}
	s.logger.Debug().Str("job", j.name).Dur("took", time.Since(start)).Msg("scheduled job done")
}
