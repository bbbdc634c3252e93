package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/coin_exchange/utils"
	"github.com/go-co-op/gocron/v2"
)

// Job is a background sweep run every Interval. A job with a zero interval is
// disabled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals. A run that is still going when the
// next one is due makes that one wait, so a job never overlaps itself.
type Scheduler struct {
	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	logger *utils.Logger
}

func New(logger *utils.Logger, jobs ...Job) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: cron, ctx: ctx, cancel: cancel, logger: logger}

	for _, job := range jobs {
		if job.Interval <= 0 {
			logger.Infof("⏸️ Job %s is disabled", job.Name)
			continue
		}
		if _, err := cron.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(s.run, job),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		logger.Infof("⏱️ Job %s scheduled every %s", job.Name, job.Interval)
	}
	return s, nil
}

func (s *Scheduler) run(job Job) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		s.logger.Errorf("Job %s failed: %v", job.Name, err)
		return
	}
	s.logger.Debugf("Job %s finished in %s", job.Name, time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}
