// Package jobs runs periodic background work on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Func is one run of a scheduled job.
type Func func(ctx context.Context) error

// Scheduler wraps a cron runner. Each run gets a context derived from the one
// passed to Start and bounded by the job's timeout.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "jobs").Logger()
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{l}), cron.SkipIfStillRunning(cronLogger{l}))),
		logger: l,
		ctx:    context.Background(),
	}
}

// Add registers job under name. spec is a standard five-field cron
// expression or a descriptor such as "@every 5m".
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Func) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// Entries reports the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
