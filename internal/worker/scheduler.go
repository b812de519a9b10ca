package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs periodic maintenance jobs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
	stop context.CancelFunc
}

func NewScheduler(log *zap.Logger) *Scheduler {
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		log:  log,
		ctx:  ctx,
		stop: stop,
	}
}

// Add registers fn under a cron spec such as "@hourly" or "@every 1m".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, fn)); err != nil {
		return fmt.Errorf("schedule %s failed: %w", name, err)
	}
	return nil
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()
		started := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(started)))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.stop()
	<-s.cron.Stop().Done()
}

// SweepJob calls every sweeper and logs how many entries each removed.
func SweepJob(log *zap.Logger, sweepers map[string]func() int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for name, sweep := range sweepers {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if n := sweep(); n > 0 {
				log.Debug("swept expired entries", zap.String("target", name), zap.Int("removed", n))
			}
		}
		return nil
	}
}

// PurgeJob adapts a purge that reports affected rows.
func PurgeJob(log *zap.Logger, name string, purge func() (int64, error)) func(ctx context.Context) error {
	return func(context.Context) error {
		n, err := purge()
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("purged expired rows", zap.String("target", name), zap.Int64("rows", n))
		}
		return nil
	}
}
