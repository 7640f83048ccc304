package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives ProcessPendingJobs on a cron schedule. Ticks never overlap.
type Scheduler struct {
	cron      *cron.Cron
	processor *Processor
	batchSize int
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a Scheduler that processes up to batchSize jobs per tick of spec.
func NewScheduler(processor *Processor, spec string, batchSize int) (*Scheduler, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		processor: processor,
		batchSize: batchSize,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse worker schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("job scheduler started", "batch_size", s.batchSize)
}

// Stop cancels the running tick and waits for it to return, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		slog.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	n, err := s.processor.ProcessPendingJobs(s.ctx, s.batchSize)
	if err != nil {
		slog.Error("job batch failed", "processed", n, "error", err)
		return
	}
	if n > 0 {
		slog.Info("job batch processed", "processed", n)
	}
}

// cronLogger adapts cron's logger interface onto slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
