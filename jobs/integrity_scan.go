package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/greengold/nexus/internal/integrity"
	jobmetrics "github.com/greengold/nexus/internal/jobs"
)

// Scanner runs one integrity pass.
type Scanner interface {
	Scan(ctx context.Context) (integrity.Report, error)
}

// IntegrityScanJob runs the integrity checks on schedule.
type IntegrityScanJob struct {
	Scanner Scanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(scanner Scanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle executes the scan. Findings are not task failures; only a scan
// that could not load its snapshot is retried.
func (j *IntegrityScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("integrity scan: handler not configured")
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskIntegrityScan)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskIntegrityScan)
	report, err := j.Scanner.Scan(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	level := slog.LevelInfo
	if !report.Clean() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "completed integrity scan",
		slog.Int("findings", len(report.Findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func jobLogger(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
