package integrity

import (
	"context"
	"log/slog"
	"time"

	"github.com/greengold/nexus/internal/observability"
)

// SnapshotSource loads what the checks need.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Service runs integrity scans.
type Service struct {
	source  SnapshotSource
	metrics *observability.BusinessMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the integrity service.
func NewService(source SnapshotSource, metrics *observability.BusinessMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Scan loads a snapshot, runs every check, logs each finding and publishes
// the per-check counts.
func (s *Service) Scan(ctx context.Context) (Report, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Run(snap, s.now())
	for _, f := range report.Findings {
		s.logger.Warn("integrity finding",
			slog.String("check", f.Check),
			slog.String("entity_id", f.EntityID.String()),
			slog.String("detail", f.Detail),
		)
	}
	for check, n := range report.Counts {
		s.metrics.IntegrityFindings(check, n)
	}
	s.logger.Info("integrity scan completed",
		slog.Int("entries", len(snap.Entries)),
		slog.Int("runs", len(snap.Runs)),
		slog.Int("findings", len(report.Findings)),
	)
	return report, nil
}
