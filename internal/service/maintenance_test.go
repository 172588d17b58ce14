package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"highlight_courier/internal/domain"
	"highlight_courier/internal/service/mocks"
)

type MaintenanceServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	sources    *mocks.MockSourceStore
	highlights *mocks.MockHighlightStore
	cycles     *mocks.MockCycleStore
	deliveries *mocks.MockDeliveryStore
	txManager  *mocks.MockTransactionManager

	service *MaintenanceService
}

func (s *MaintenanceServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.highlights = mocks.NewMockHighlightStore(s.ctrl)
	s.cycles = mocks.NewMockCycleStore(s.ctrl)
	s.deliveries = mocks.NewMockDeliveryStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewMaintenanceService(
		s.sources,
		s.highlights,
		s.cycles,
		s.deliveries,
		s.txManager,
		logger,
	)
}

func (s *MaintenanceServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestMaintenanceServiceTestSuite(t *testing.T) {
	suite.Run(t, new(MaintenanceServiceTestSuite))
}

func (s *MaintenanceServiceTestSuite) expectTransaction(ctx context.Context) {
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *MaintenanceServiceTestSuite) TestBulkDelete_MixedOutcome() {
	ctx := context.Background()

	gomock.InOrder(
		s.highlights.EXPECT().Delete(ctx, "h1").Return(nil),
		s.highlights.EXPECT().Delete(ctx, "missing").Return(domain.NewNotFound("highlight missing")),
		s.highlights.EXPECT().Delete(ctx, "h2").Return(nil),
	)

	results := s.service.BulkDelete(ctx, []string{"h1", "missing", "h2"})

	s.Len(results, 3)
	s.True(results[0].OK)
	s.False(results[1].OK)
	s.Contains(results[1].Error, "not_found")
	s.True(results[2].OK)
}

func (s *MaintenanceServiceTestSuite) TestBulkUpdate_CancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.service.BulkUpdate(ctx, []string{"h1", "h2"}, domain.HighlightPatch{})

	s.NoError(err)
	s.Len(results, 2)
	for _, r := range results {
		s.False(r.OK)
		s.Equal("cancelled", r.Error)
	}
}

func (s *MaintenanceServiceTestSuite) TestBulkUpdate_RejectsBlankText() {
	ctx := context.Background()
	blank := "   "

	_, err := s.service.BulkUpdate(ctx, []string{"h1"}, domain.HighlightPatch{Text: &blank})

	s.Error(err)
	s.True(domain.IsValidation(err))
}

func (s *MaintenanceServiceTestSuite) TestBulkUpdate_RejectsUnknownCategory() {
	ctx := context.Background()
	bogus := domain.Category("bogus")

	_, err := s.service.BulkUpdate(ctx, []string{"h1"}, domain.HighlightPatch{Category: &bogus})

	s.Error(err)
	s.True(domain.IsValidation(err))
	s.Contains(err.Error(), "bogus")
}

func (s *MaintenanceServiceTestSuite) TestCleanup_PrunesAndRemovesOrphans() {
	ctx := context.Background()

	s.cycles.EXPECT().PruneOldest(ctx, 100).Return(3, nil)
	s.deliveries.EXPECT().PruneOldest(ctx, 50).Return(1, nil)
	s.highlights.EXPECT().DeleteOrphans(ctx).Return([]string{"orphan-1"}, nil)

	report, err := s.service.Cleanup(ctx, CleanupPolicy{
		KeepCycleRecords:    100,
		KeepDeliveryRecords: 50,
		RemoveOrphans:       true,
	})

	s.NoError(err)
	s.Equal(3, report.CyclesPruned)
	s.Equal(1, report.DeliveriesPruned)
	s.Equal([]string{"orphan-1"}, report.OrphansRemoved)
}

func (s *MaintenanceServiceTestSuite) TestImportAll_UnsupportedVersion() {
	ctx := context.Background()

	_, err := s.service.ImportAll(ctx, &domain.Snapshot{Version: 99}, ImportOptions{})

	s.Error(err)
	s.True(domain.IsValidation(err))
}

func (s *MaintenanceServiceTestSuite) TestImportAll_SkipsExistingByDefault() {
	ctx := context.Background()
	now := time.Now()

	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: now,
		Sources: []domain.Source{
			{ID: "src-1", Title: "Known Book", LastUpdated: now},
		},
		Highlights: []domain.Highlight{
			{ID: "h1", SourceID: "src-1", Text: "New text.", DateCreated: now, DateIngested: now},
		},
	}

	s.expectTransaction(ctx)

	// Source already present, highlight not.
	s.sources.EXPECT().Get(ctx, "src-1").Return(&domain.Source{ID: "src-1"}, nil)
	s.highlights.EXPECT().Get(ctx, "h1").Return(nil, domain.NewNotFound("highlight h1"))
	s.highlights.EXPECT().Put(ctx, gomock.Any()).Return(nil)

	report, err := s.service.ImportAll(ctx, snap, ImportOptions{})

	s.NoError(err)
	s.Equal(0, report.SourcesAdded)
	s.Equal(1, report.Skipped)
	s.Equal(1, report.HighlightsAdded)
	s.Equal(0, report.Replaced)
}

func (s *MaintenanceServiceTestSuite) TestImportAll_OverwriteReplaces() {
	ctx := context.Background()
	now := time.Now()

	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: now,
		Highlights: []domain.Highlight{
			{ID: "h1", SourceID: "src-1", Text: "Replacement.", DateCreated: now, DateIngested: now},
		},
	}

	s.expectTransaction(ctx)
	s.highlights.EXPECT().Get(ctx, "h1").Return(&domain.Highlight{ID: "h1"}, nil)
	s.highlights.EXPECT().Put(ctx, gomock.Any()).Return(nil)

	report, err := s.service.ImportAll(ctx, snap, ImportOptions{Overwrite: true})

	s.NoError(err)
	s.Equal(1, report.Replaced)
	s.Equal(0, report.HighlightsAdded)
}

func (s *MaintenanceServiceTestSuite) TestImportAll_RejectsInvalidRecords() {
	ctx := context.Background()
	now := time.Now()

	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: now,
		Highlights: []domain.Highlight{
			{ID: "bad", SourceID: "src-1", Text: "", DateCreated: now},
			{ID: "good", SourceID: "src-1", Text: "Fine.", DateCreated: now},
		},
	}

	s.expectTransaction(ctx)
	s.highlights.EXPECT().Get(ctx, "good").Return(nil, domain.NewNotFound("highlight good"))
	s.highlights.EXPECT().Put(ctx, gomock.Any()).Return(nil)

	report, err := s.service.ImportAll(ctx, snap, ImportOptions{})

	s.NoError(err)
	s.Equal(1, report.HighlightsAdded)
	s.Len(report.Rejected, 1)
	s.Equal("bad", report.Rejected[0].ID)
}

func (s *MaintenanceServiceTestSuite) TestImportAll_RejectsHighlightWithUnknownSource() {
	ctx := context.Background()
	now := time.Now()

	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: now,
		Highlights: []domain.Highlight{
			{ID: "stray", SourceID: "ghost", Text: "No such book.", DateCreated: now, DateIngested: now},
		},
	}

	s.expectTransaction(ctx)
	s.highlights.EXPECT().Get(ctx, "stray").Return(nil, domain.NewNotFound("highlight stray"))
	s.highlights.EXPECT().Put(ctx, gomock.Any()).
		Return(domain.NewConstraint("highlight stray references unknown source ghost"))

	report, err := s.service.ImportAll(ctx, snap, ImportOptions{})

	s.NoError(err)
	s.Equal(0, report.HighlightsAdded)
	s.Require().Len(report.Rejected, 1)
	s.Equal("stray", report.Rejected[0].ID)
	s.Contains(report.Rejected[0].Reason, "unknown source")
}

func (s *MaintenanceServiceTestSuite) TestImportAll_AppendsHistory() {
	ctx := context.Background()
	now := time.Now()

	snap := &domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: now,
		CycleRecords: []domain.CycleRecord{
			{ID: "c1", Timestamp: now, Status: domain.CycleSuccess},
		},
		DeliveryRecords: []domain.DeliveryRecord{
			{ID: "d1", Timestamp: now, Status: domain.DeliverySent},
		},
	}

	s.expectTransaction(ctx)
	s.cycles.EXPECT().Append(ctx, &snap.CycleRecords[0]).Return(nil)
	s.deliveries.EXPECT().Append(ctx, &snap.DeliveryRecords[0]).Return(nil)

	report, err := s.service.ImportAll(ctx, snap, ImportOptions{})

	s.NoError(err)
	s.Equal(2, report.RecordsAdded)
}

func (s *MaintenanceServiceTestSuite) TestExportAll_Snapshot() {
	ctx := context.Background()

	s.sources.EXPECT().List(ctx).Return([]domain.Source{{ID: "src-1"}}, nil)
	s.highlights.EXPECT().List(ctx).Return([]domain.Highlight{{ID: "h1"}}, nil)
	s.cycles.EXPECT().List(ctx, 0).Return([]domain.CycleRecord{{ID: "c1"}}, nil)
	s.deliveries.EXPECT().List(ctx, 0).Return([]domain.DeliveryRecord{{ID: "d1"}}, nil)

	snap, err := s.service.ExportAll(ctx)

	s.NoError(err)
	s.Equal(domain.SnapshotVersion, snap.Version)
	s.Len(snap.Sources, 1)
	s.Len(snap.Highlights, 1)
	s.Len(snap.CycleRecords, 1)
	s.Len(snap.DeliveryRecords, 1)
	s.False(snap.ExportedAt.IsZero())
}

func (s *MaintenanceServiceTestSuite) TestClearAll_WipesEverything() {
	ctx := context.Background()

	s.expectTransaction(ctx)
	s.highlights.EXPECT().Clear(ctx).Return(nil)
	s.sources.EXPECT().Clear(ctx).Return(nil)
	s.cycles.EXPECT().Clear(ctx).Return(nil)
	s.deliveries.EXPECT().Clear(ctx).Return(nil)

	s.NoError(s.service.ClearAll(ctx))
}
