package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

// Parser accepts six-field expressions with a leading seconds field,
// e.g. "0 0 8,15 * * 1-5".
var Parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled unit of work.
type Job interface {
	Fire(ctx context.Context) (bool, error)
}

// Scheduler fires a Job on a cron schedule until its context ends. Runs never
// overlap; a tick that arrives while the previous one is running is skipped.
type Scheduler struct {
	cron *cron.Cron
	job  Job
	log  *logger.Logger
}

func NewScheduler(schedule string, loc *time.Location, job Job, log *logger.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{job: job, log: log}

	s.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	s.log.Info("Running cron job")
	ctx := context.Background()
	executed, err := s.job.Fire(ctx)
	if err != nil {
		s.log.Error(err, "Failed to run cron job")
		return
	}
	s.log.Info("Cron job finished", "executed", executed)
}

// Next returns the next fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(t)
}

// Start runs the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("Scheduler started", "next", s.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	s.log.Info("Scheduler shutting down")
	<-s.cron.Stop().Done()
}
