package scheduler

import (
	"context"
	"log/slog"
	"time"

	"highlight_courier/internal/domain"
)

// Ingester runs one ingestion cycle.
type Ingester interface {
	Ingest(ctx context.Context) (*domain.IngestStats, error)
}

// IngestLoop pulls from the extractor on a fixed interval, with an immediate
// first run on start.
type IngestLoop struct {
	ingester Ingester
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewIngestLoop(ingester Ingester, interval, timeout time.Duration, logger *slog.Logger) *IngestLoop {
	return &IngestLoop{
		ingester: ingester,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (l *IngestLoop) Start(ctx context.Context) error {
	l.logger.Info("ingest loop started", "interval", l.interval)

	l.runIngest(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ingest loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.runIngest(ctx)
		}
	}
}

func (l *IngestLoop) runIngest(ctx context.Context) {
	ingestCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if _, err := l.ingester.Ingest(ingestCtx); err != nil {
		l.logger.Error("ingest failed", "error", err)
	}
}
