// Package schedule drives the recurring work: interval jobs on tickers,
// daily jobs on cron expressions, with overlap protection and a
// consecutive-failure budget.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
)

// JobFunc is one unit of scheduled work. A non-nil error counts against
// the job's consecutive-failure budget.
type JobFunc func(ctx context.Context) error

// job tracks one registered job's run state.
type job struct {
	name     string
	fn       JobFunc
	interval time.Duration // zero for cron-driven jobs
	spec     string        // cron spec for daily jobs

	mu       sync.Mutex // held while running; TryLock skips overlap
	failures int
	deferUntil time.Time
}

// Scheduler owns the daemon's recurring jobs.
type Scheduler struct {
	cfg   config.SchedulerConfig
	log   *zap.Logger
	jobs  []*job
	fatal chan error

	clock func() time.Time
}

func New(cfg config.SchedulerConfig, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		log:   log.Named("schedule"),
		fatal: make(chan error, 1),
		clock: time.Now,
	}
}

// AddInterval registers a ticker-driven job.
func (s *Scheduler) AddInterval(name string, interval time.Duration, fn JobFunc) {
	s.jobs = append(s.jobs, &job{name: name, fn: fn, interval: interval})
}

// AddDaily registers a job at a "HH:MM" local time.
func (s *Scheduler) AddDaily(name, hhmm string, fn JobFunc) error {
	spec, err := config.ParseDailyTime(hhmm)
	if err != nil {
		return fmt.Errorf("daily job %s: %w", name, err)
	}
	s.jobs = append(s.jobs, &job{name: name, fn: fn, spec: spec})
	return nil
}

// Run blocks until ctx is cancelled or a job exhausts its failure
// budget, in which case the budget error is returned and the daemon
// should terminate.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	c := cron.New()

	for _, j := range s.jobs {
		j := j
		if j.spec != "" {
			if _, err := c.AddFunc(j.spec, func() { s.runJob(ctx, j) }); err != nil {
				return fmt.Errorf("schedule %s: %w", j.name, err)
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runInterval(ctx, j)
		}()
	}
	c.Start()
	defer func() {
		cancel()
		<-c.Stop().Done()
		wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.fatal:
		return err
	}
}

// runInterval fires the job immediately, then on every tick.
func (s *Scheduler) runInterval(ctx context.Context, j *job) {
	s.runJob(ctx, j)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, j)
		}
	}
}

// runJob executes one attempt with overlap protection, timeout, and the
// failure budget. Failures push the next eligible run out linearly:
// one backoff unit per consecutive failure.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if !j.mu.TryLock() {
		s.log.Warn("job still running, tick skipped", zap.String("job", j.name))
		return
	}
	defer j.mu.Unlock()

	now := s.clock()
	if now.Before(j.deferUntil) {
		s.log.Debug("job deferred by backoff", zap.String("job", j.name),
			zap.Time("until", j.deferUntil))
		return
	}

	jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	started := s.clock()
	err := j.fn(jctx)
	took := s.clock().Sub(started)

	if err == nil {
		if j.failures > 0 {
			s.log.Info("job recovered", zap.String("job", j.name), zap.Int("after_failures", j.failures))
		}
		j.failures = 0
		j.deferUntil = time.Time{}
		s.log.Debug("job done", zap.String("job", j.name), zap.Duration("took", took))
		return
	}

	j.failures++
	j.deferUntil = s.clock().Add(time.Duration(j.failures) * s.cfg.FailureBackoff)
	s.log.Error("job failed",
		zap.String("job", j.name),
		zap.Int("consecutive", j.failures),
		zap.Duration("took", took),
		zap.Error(err))

	if j.failures >= s.cfg.MaxConsecutiveFailures {
		select {
		case s.fatal <- fmt.Errorf("job %s failed %d consecutive times: %w", j.name, j.failures, err):
		default:
		}
	}
}
