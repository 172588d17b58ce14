package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"highlight_courier/internal/config"
	"highlight_courier/internal/domain"
	"highlight_courier/internal/metrics"
)

// IngestService pulls a batch from the extractor and applies it to the store:
// sources first, then highlights, one cycle record per run. A bad item is
// recorded and skipped, never fatal to its siblings.
type IngestService struct {
	extractor  Extractor
	sources    SourceStore
	highlights HighlightStore
	cycles     CycleStore
	txManager  TransactionManager
	logger     *slog.Logger
	config     config.IngestConfig
	now        func() time.Time
}

func NewIngestService(
	extractor Extractor,
	sources SourceStore,
	highlights HighlightStore,
	cycles CycleStore,
	txManager TransactionManager,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *IngestService {
	return &IngestService{
		extractor:  extractor,
		sources:    sources,
		highlights: highlights,
		cycles:     cycles,
		txManager:  txManager,
		logger:     logger.With("extractor", extractor.ID()),
		config:     cfg,
		now:        time.Now,
	}
}

// Ingest runs one ingestion cycle. The whole batch is applied inside a single
// transaction so concurrent readers never observe half a batch; the batch
// budget is a soft deadline checked between items, so an over-budget run
// commits what it already applied and stops cleanly.
func (s *IngestService) Ingest(ctx context.Context) (*domain.IngestStats, error) {
	startTime := s.now()
	s.logger.Info("starting ingest", "max_pages", s.config.MaxPages)

	batch, err := s.extractor.FetchBatch(ctx, s.config.MaxPages)
	if err != nil {
		s.recordCycle(ctx, &domain.IngestStats{Errors: []string{err.Error()}})
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	stats := &domain.IngestStats{
		Fetched: len(batch.Highlights),
		Errors:  append([]string{}, batch.Errors...),
	}

	deadline := startTime.Add(s.config.BatchBudget)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.applySources(txCtx, batch.Sources, stats, deadline); err != nil {
			return err
		}
		return s.applyHighlights(txCtx, batch.Highlights, stats, deadline)
	})
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		s.recordCycle(ctx, stats)
		return stats, fmt.Errorf("apply batch: %w", err)
	}

	stats.Duration = s.now().Sub(startTime)
	s.recordCycle(ctx, stats)
	metrics.HighlightsIngested.Add(float64(stats.Added))

	s.logger.Info("ingest completed",
		"sources", stats.SourcesUpserted,
		"added", stats.Added,
		"unchanged", stats.Unchanged,
		"errors", len(stats.Errors),
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *IngestService) applySources(ctx context.Context, sources []domain.Source, stats *domain.IngestStats, deadline time.Time) error {
	for i := range sources {
		if stop := s.checkBudget(ctx, deadline, stats); stop {
			return nil
		}

		src := sources[i]
		if src.ID == "" {
			src.ID = domain.SurrogateSourceID(src.Title, src.Creator)
		}
		if src.LastUpdated.IsZero() {
			src.LastUpdated = s.now()
		}
		if err := src.Validate(); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		if err := s.sources.Upsert(ctx, &src); err != nil {
			return err
		}
		stats.SourcesUpserted++
	}
	return nil
}

func (s *IngestService) applyHighlights(ctx context.Context, highlights []domain.Highlight, stats *domain.IngestStats, deadline time.Time) error {
	for i := range highlights {
		if stop := s.checkBudget(ctx, deadline, stats); stop {
			return nil
		}

		h := highlights[i]
		if h.ID == "" {
			h.ID = domain.HighlightID(h.SourceID, h.Text)
		}
		if h.PageNumber == nil {
			h.PageNumber = domain.PageNumber(h.LocationLabel)
		}
		if h.Category == "" {
			h.Category = domain.CategoryGeneral
		}
		if h.DateCreated.IsZero() {
			h.DateCreated = s.now()
		}
		h.DateIngested = s.now()
		h.TimesShown = 0
		h.LastShownAt = nil

		if err := h.Validate(); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}

		added, err := s.highlights.Upsert(ctx, &h)
		if err != nil {
			if domain.IsConstraint(err) {
				stats.Errors = append(stats.Errors, err.Error())
				continue
			}
			return err
		}
		if added {
			stats.Added++
		} else {
			stats.Unchanged++
		}
	}
	return nil
}

// checkBudget reports whether the batch should stop early, either because the
// context was cancelled or the soft budget ran out. Applied items stay
// committed; nothing is rolled back on a clean stop.
func (s *IngestService) checkBudget(ctx context.Context, deadline time.Time, stats *domain.IngestStats) bool {
	if ctx.Err() != nil {
		stats.Errors = append(stats.Errors, "ingest cancelled")
		return true
	}
	if s.now().After(deadline) {
		s.logger.Warn("batch budget exhausted, stopping early",
			"applied", stats.Added,
		)
		stats.Errors = append(stats.Errors, "batch budget exhausted")
		return true
	}
	return false
}

func (s *IngestService) recordCycle(ctx context.Context, stats *domain.IngestStats) {
	rec := &domain.CycleRecord{
		ID:         uuid.NewString(),
		Timestamp:  s.now(),
		ItemsAdded: stats.Added,
		ItemsTotal: stats.Fetched,
		Status:     stats.Status(),
	}
	if len(stats.Errors) > 0 {
		rec.ErrorMessage = stats.Errors[0]
		if len(stats.Errors) > 1 {
			rec.ErrorMessage = fmt.Sprintf("%s (+%d more)", stats.Errors[0], len(stats.Errors)-1)
		}
	}

	if err := s.cycles.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append cycle record", "error", err)
	}
}
