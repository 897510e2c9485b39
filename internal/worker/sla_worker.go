package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/observability"
	"github.com/sclint/support-desk/internal/service"
)

// SweepRunner runs one SLA sweep.
type SweepRunner interface {
	RunSLASweep(ctx context.Context) (service.SweepReport, error)
}

// SLAWorker runs the SLA sweep on a cron schedule. A run still in progress
// when the next tick fires causes that tick to be skipped.
type SLAWorker struct {
	runner   SweepRunner
	schedule string
	metrics  *observability.Metrics
	logger   *zap.Logger
	cron     *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// NewSLAWorker validates schedule and prepares the cron runner.
func NewSLAWorker(runner SweepRunner, schedule string, loc *time.Location, metrics *observability.Metrics, logger *zap.Logger) (*SLAWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	w := &SLAWorker{
		runner:   runner,
		schedule: schedule,
		metrics:  metrics,
		logger:   logger,
		ctx:      context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("schedule sla sweep %q: %w", schedule, err)
	}
	return w, nil
}

// Run starts the scheduler and blocks until ctx is cancelled. It waits for
// an in-flight sweep before returning.
func (w *SLAWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.cron.Start()
	w.logger.Info("sla sweep scheduled", zap.String("schedule", w.schedule))

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info("sla sweep scheduler stopped")
	return nil
}

// RunOnce performs a single sweep and records its outcome.
func (w *SLAWorker) RunOnce(ctx context.Context) (service.SweepReport, error) {
	report, err := w.runner.RunSLASweep(ctx)
	w.metrics.RecordSweep(report.StartedAt, report.Duration, report.Scanned, report.Reclassified, report.Breached, report.Failed)
	if err != nil {
		w.logger.Error("sla sweep aborted", zap.Error(err))
	}
	return report, err
}

func (w *SLAWorker) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_, _ = w.RunOnce(ctx)
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
