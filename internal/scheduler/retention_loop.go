package scheduler

import (
	"context"
	"log/slog"
	"time"

	"highlight_courier/internal/service"
)

// Maintainer runs one history cleanup pass.
type Maintainer interface {
	Cleanup(ctx context.Context, policy service.CleanupPolicy) (*service.CleanupReport, error)
}

// RetentionLoop prunes cycle and delivery history on a fixed interval so the
// tables stay bounded without operator intervention.
type RetentionLoop struct {
	maintainer Maintainer
	policy     service.CleanupPolicy
	interval   time.Duration
	logger     *slog.Logger
}

func NewRetentionLoop(maintainer Maintainer, policy service.CleanupPolicy, interval time.Duration, logger *slog.Logger) *RetentionLoop {
	return &RetentionLoop{
		maintainer: maintainer,
		policy:     policy,
		interval:   interval,
		logger:     logger,
	}
}

func (l *RetentionLoop) Start(ctx context.Context) error {
	l.logger.Info("retention loop started", "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("retention loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.runCleanup(ctx)
		}
	}
}

func (l *RetentionLoop) runCleanup(ctx context.Context) {
	report, err := l.maintainer.Cleanup(ctx, l.policy)
	if err != nil {
		l.logger.Error("retention cleanup failed", "error", err)
		return
	}
	l.logger.Info("retention cleanup finished",
		"cycles_pruned", report.CyclesPruned,
		"deliveries_pruned", report.DeliveriesPruned,
		"orphans_removed", len(report.OrphansRemoved))
}
