package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
)

// JobFunc is one scheduled sweep.
type JobFunc func(ctx context.Context, now time.Time) error

// Scheduler runs sweeps on cron specs. A run that is still going when its
// next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	clock  clock.Clock
	logger *zap.Logger
	ctx    context.Context
}

func NewScheduler(clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		clock:  clk,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers job under spec ("@every 5m", "0 * * * *", ...). Must be
// called before Start.
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := s.clock.Now()
		if err := job(s.ctx, start); err != nil {
			s.logger.Error("Scheduled sweep failed",
				zap.String("job", name),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("Scheduled sweep completed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Sweep scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to return. Jobs receive ctx and should stop between sensors once it
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("Sweep scheduler stopped")
	}()
}

// Stop halts the scheduler and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
