package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"highlight_courier/internal/domain"
)

// ItemResult reports the outcome of one id within a bulk operation.
type ItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CleanupPolicy bounds how much history survives a cleanup pass.
type CleanupPolicy struct {
	KeepCycleRecords    int  `json:"keep_cycle_records"`
	KeepDeliveryRecords int  `json:"keep_delivery_records"`
	RemoveOrphans       bool `json:"remove_orphans"`
}

// CleanupReport says what a cleanup pass actually removed.
type CleanupReport struct {
	CyclesPruned     int      `json:"cycles_pruned"`
	DeliveriesPruned int      `json:"deliveries_pruned"`
	OrphansRemoved   []string `json:"orphans_removed"`
}

// ImportOptions controls how records colliding with existing ids are treated.
// With neither flag set existing records are left untouched; that is not an
// error.
type ImportOptions struct {
	Overwrite      bool `json:"overwrite"`
	SkipDuplicates bool `json:"skip_duplicates"`
}

// RejectedRecord explains why one snapshot record was not imported.
type RejectedRecord struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportReport summarizes an import: per-record rejections never block the
// valid records around them.
type ImportReport struct {
	SourcesAdded    int              `json:"sources_added"`
	HighlightsAdded int              `json:"highlights_added"`
	RecordsAdded    int              `json:"records_added"`
	Replaced        int              `json:"replaced"`
	Skipped         int              `json:"skipped"`
	Rejected        []RejectedRecord `json:"rejected,omitempty"`
}

// MaintenanceService covers bulk mutation, retention pruning, orphan cleanup
// and snapshot export/import.
type MaintenanceService struct {
	sources    SourceStore
	highlights HighlightStore
	cycles     CycleStore
	deliveries DeliveryStore
	txManager  TransactionManager
	logger     *slog.Logger
	now        func() time.Time
}

func NewMaintenanceService(
	sources SourceStore,
	highlights HighlightStore,
	cycles CycleStore,
	deliveries DeliveryStore,
	txManager TransactionManager,
	logger *slog.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		sources:    sources,
		highlights: highlights,
		cycles:     cycles,
		deliveries: deliveries,
		txManager:  txManager,
		logger:     logger,
		now:        time.Now,
	}
}

// BulkUpdate applies the patch to each id independently. The patch itself is
// validated once up front; a failed id is reported in its result and never
// aborts the others.
func (m *MaintenanceService) BulkUpdate(ctx context.Context, ids []string, patch domain.HighlightPatch) ([]ItemResult, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			results = append(results, ItemResult{ID: id, Error: "cancelled"})
			continue
		}
		if err := m.highlights.ApplyPatch(ctx, id, patch); err != nil {
			results = append(results, ItemResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, ItemResult{ID: id, OK: true})
	}
	return results, nil
}

// BulkDelete removes each id independently, reporting unknown ids per item.
func (m *MaintenanceService) BulkDelete(ctx context.Context, ids []string) []ItemResult {
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			results = append(results, ItemResult{ID: id, Error: "cancelled"})
			continue
		}
		if err := m.highlights.Delete(ctx, id); err != nil {
			results = append(results, ItemResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, ItemResult{ID: id, OK: true})
	}
	return results
}

// DeleteSource removes one source. Its highlights stay in place until the
// next orphan cleanup.
func (m *MaintenanceService) DeleteSource(ctx context.Context, id string) error {
	return m.sources.Delete(ctx, id)
}

// LastCycle returns the most recent ingestion cycle record.
func (m *MaintenanceService) LastCycle(ctx context.Context) (*domain.CycleRecord, error) {
	return m.cycles.Latest(ctx)
}

// Cleanup prunes history beyond the retention counts (oldest first) and
// removes highlights whose source is gone.
func (m *MaintenanceService) Cleanup(ctx context.Context, policy CleanupPolicy) (*CleanupReport, error) {
	report := &CleanupReport{}

	if policy.KeepCycleRecords > 0 {
		n, err := m.cycles.PruneOldest(ctx, policy.KeepCycleRecords)
		if err != nil {
			return nil, fmt.Errorf("prune cycle records: %w", err)
		}
		report.CyclesPruned = n
	}
	if policy.KeepDeliveryRecords > 0 {
		n, err := m.deliveries.PruneOldest(ctx, policy.KeepDeliveryRecords)
		if err != nil {
			return nil, fmt.Errorf("prune delivery records: %w", err)
		}
		report.DeliveriesPruned = n
	}
	if policy.RemoveOrphans {
		ids, err := m.highlights.DeleteOrphans(ctx)
		if err != nil {
			return nil, fmt.Errorf("remove orphans: %w", err)
		}
		report.OrphansRemoved = ids
	}

	m.logger.Info("cleanup completed",
		"cycles_pruned", report.CyclesPruned,
		"deliveries_pruned", report.DeliveriesPruned,
		"orphans_removed", len(report.OrphansRemoved),
	)
	return report, nil
}

// ExportAll produces a versioned snapshot of every collection.
func (m *MaintenanceService) ExportAll(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: m.now(),
	}

	var err error
	if snap.Sources, err = m.sources.List(ctx); err != nil {
		return nil, fmt.Errorf("export sources: %w", err)
	}
	if snap.Highlights, err = m.highlights.List(ctx); err != nil {
		return nil, fmt.Errorf("export highlights: %w", err)
	}
	if snap.CycleRecords, err = m.cycles.List(ctx, 0); err != nil {
		return nil, fmt.Errorf("export cycle records: %w", err)
	}
	if snap.DeliveryRecords, err = m.deliveries.List(ctx, 0); err != nil {
		return nil, fmt.Errorf("export delivery records: %w", err)
	}
	return snap, nil
}

// ImportAll validates and applies a snapshot. A snapshot with an unknown
// version is rejected outright; individual invalid records are rejected with
// a reason and do not block their siblings.
func (m *MaintenanceService) ImportAll(ctx context.Context, snap *domain.Snapshot, opts ImportOptions) (*ImportReport, error) {
	if snap == nil {
		return nil, domain.NewValidation("nil snapshot")
	}
	if snap.Version != domain.SnapshotVersion {
		return nil, domain.NewValidation("unsupported snapshot version %d", snap.Version)
	}

	report := &ImportReport{}

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.importSources(txCtx, snap.Sources, opts, report); err != nil {
			return err
		}
		if err := m.importHighlights(txCtx, snap.Highlights, opts, report); err != nil {
			return err
		}
		return m.importRecords(txCtx, snap, report)
	})
	if err != nil {
		return report, err
	}

	m.logger.Info("import completed",
		"sources", report.SourcesAdded,
		"highlights", report.HighlightsAdded,
		"replaced", report.Replaced,
		"skipped", report.Skipped,
		"rejected", len(report.Rejected),
	)
	return report, nil
}

func (m *MaintenanceService) importSources(ctx context.Context, sources []domain.Source, opts ImportOptions, report *ImportReport) error {
	for i := range sources {
		src := sources[i]
		if err := src.Validate(); err != nil {
			report.Rejected = append(report.Rejected, RejectedRecord{ID: src.ID, Reason: err.Error()})
			continue
		}

		_, err := m.sources.Get(ctx, src.ID)
		exists := err == nil
		if err != nil && !domain.IsNotFound(err) {
			return err
		}

		if exists && !opts.Overwrite {
			report.Skipped++
			continue
		}
		if err := m.sources.Upsert(ctx, &src); err != nil {
			return err
		}
		if exists {
			report.Replaced++
		} else {
			report.SourcesAdded++
		}
	}
	return nil
}

func (m *MaintenanceService) importHighlights(ctx context.Context, highlights []domain.Highlight, opts ImportOptions, report *ImportReport) error {
	for i := range highlights {
		h := highlights[i]
		if err := h.Validate(); err != nil {
			report.Rejected = append(report.Rejected, RejectedRecord{ID: h.ID, Reason: err.Error()})
			continue
		}

		_, err := m.highlights.Get(ctx, h.ID)
		exists := err == nil
		if err != nil && !domain.IsNotFound(err) {
			return err
		}

		if exists && !opts.Overwrite {
			report.Skipped++
			continue
		}
		if err := m.highlights.Put(ctx, &h); err != nil {
			if domain.IsConstraint(err) || domain.IsValidation(err) {
				report.Rejected = append(report.Rejected, RejectedRecord{ID: h.ID, Reason: err.Error()})
				continue
			}
			return err
		}
		if exists {
			report.Replaced++
		} else {
			report.HighlightsAdded++
		}
	}
	return nil
}

// importRecords appends history records; appends are idempotent on id, so
// re-importing a snapshot never duplicates history.
func (m *MaintenanceService) importRecords(ctx context.Context, snap *domain.Snapshot, report *ImportReport) error {
	for i := range snap.CycleRecords {
		if err := m.cycles.Append(ctx, &snap.CycleRecords[i]); err != nil {
			return err
		}
		report.RecordsAdded++
	}
	for i := range snap.DeliveryRecords {
		if err := m.deliveries.Append(ctx, &snap.DeliveryRecords[i]); err != nil {
			return err
		}
		report.RecordsAdded++
	}
	return nil
}

// ClearAll wipes every collection in one transaction.
func (m *MaintenanceService) ClearAll(ctx context.Context) error {
	return m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.highlights.Clear(txCtx); err != nil {
			return err
		}
		if err := m.sources.Clear(txCtx); err != nil {
			return err
		}
		if err := m.cycles.Clear(txCtx); err != nil {
			return err
		}
		return m.deliveries.Clear(txCtx)
	})
}
