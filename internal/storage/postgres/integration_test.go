//go:build integration

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"highlight_courier/internal/domain"
	"highlight_courier/internal/service"
	"highlight_courier/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_core.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM highlights")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sources")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM cycle_records")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM delivery_records")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedSource(id string) {
	store := NewSourceStore(s.db)
	err := store.Upsert(s.ctx, &domain.Source{
		ID:          id,
		Title:       "Seed Book " + id,
		Creator:     "Author",
		LastUpdated: time.Now().Truncate(time.Microsecond),
	})
	s.Require().NoError(err)
}

func (s *PostgresIntegrationSuite) newHighlight(id, sourceID string) *domain.Highlight {
	now := time.Now().Truncate(time.Microsecond)
	return &domain.Highlight{
		ID:            id,
		SourceID:      sourceID,
		Text:          "Text of " + id,
		LocationLabel: "42 (page)",
		PageNumber:    utils.Ptr(42),
		DateCreated:   now.Add(-time.Hour),
		DateIngested:  now,
		Category:      domain.CategoryGeneral,
		Tags:          []string{"test"},
	}
}

func (s *PostgresIntegrationSuite) TestSourceStore_UpsertIsMonotonic() {
	store := NewSourceStore(s.db)
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)

	s.NoError(store.Upsert(s.ctx, &domain.Source{ID: "s1", Title: "First", LastUpdated: late}))

	// A stale update must not move last_updated backwards.
	s.NoError(store.Upsert(s.ctx, &domain.Source{ID: "s1", Title: "Renamed", LastUpdated: early}))

	got, err := store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal("Renamed", got.Title)
	s.True(got.LastUpdated.Equal(late))
}

func (s *PostgresIntegrationSuite) TestSourceStore_GetNotFound() {
	store := NewSourceStore(s.db)

	_, err := store.Get(s.ctx, "nope")
	s.True(domain.IsNotFound(err))

	s.True(domain.IsNotFound(store.Delete(s.ctx, "nope")))
}

func (s *PostgresIntegrationSuite) TestHighlightStore_UpsertIsIdempotent() {
	s.seedSource("s1")
	store := NewHighlightStore(s.db)

	h := s.newHighlight("h1", "s1")
	inserted, err := store.Upsert(s.ctx, h)
	s.Require().NoError(err)
	s.True(inserted)

	// Same id again: no-op, first-seen ingestion time survives.
	dup := s.newHighlight("h1", "s1")
	dup.DateIngested = h.DateIngested.Add(time.Hour)
	inserted, err = store.Upsert(s.ctx, dup)
	s.Require().NoError(err)
	s.False(inserted)

	got, err := store.Get(s.ctx, "h1")
	s.Require().NoError(err)
	s.True(got.DateIngested.Equal(h.DateIngested))
	s.Equal([]string{"test"}, got.Tags)
}

func (s *PostgresIntegrationSuite) TestHighlightStore_UnknownSourceIsConstraint() {
	store := NewHighlightStore(s.db)

	_, err := store.Upsert(s.ctx, s.newHighlight("h1", "ghost"))
	s.True(domain.IsConstraint(err))
}

func (s *PostgresIntegrationSuite) TestHighlightStore_CommitShown() {
	s.seedSource("s1")
	store := NewHighlightStore(s.db)

	_, err := store.Upsert(s.ctx, s.newHighlight("h1", "s1"))
	s.Require().NoError(err)

	shownAt := time.Now().Truncate(time.Microsecond)
	s.NoError(store.CommitShown(s.ctx, "h1", shownAt))
	s.NoError(store.CommitShown(s.ctx, "h1", shownAt.Add(time.Minute)))

	got, err := store.Get(s.ctx, "h1")
	s.Require().NoError(err)
	s.Equal(2, got.TimesShown)
	s.Require().NotNil(got.LastShownAt)
	s.True(got.LastShownAt.Equal(shownAt.Add(time.Minute)))

	s.True(domain.IsNotFound(store.CommitShown(s.ctx, "nope", shownAt)))
}

func (s *PostgresIntegrationSuite) TestHighlightStore_ApplyPatchPartial() {
	s.seedSource("s1")
	store := NewHighlightStore(s.db)

	_, err := store.Upsert(s.ctx, s.newHighlight("h1", "s1"))
	s.Require().NoError(err)

	err = store.ApplyPatch(s.ctx, "h1", domain.HighlightPatch{
		Note: utils.Ptr("added later"),
		Tags: utils.Ptr([]string{"a", "b"}),
	})
	s.Require().NoError(err)

	got, err := store.Get(s.ctx, "h1")
	s.Require().NoError(err)
	s.Equal("added later", got.Note)
	s.Equal([]string{"a", "b"}, got.Tags)
	// Untouched fields keep their values.
	s.Equal("Text of h1", got.Text)
	s.Equal(domain.CategoryGeneral, got.Category)
}

func (s *PostgresIntegrationSuite) TestHighlightStore_OrphansSurviveUntilCleanup() {
	s.seedSource("s1")
	sources := NewSourceStore(s.db)
	store := NewHighlightStore(s.db)

	_, err := store.Upsert(s.ctx, s.newHighlight("h1", "s1"))
	s.Require().NoError(err)

	// Deleting the source leaves the highlight in place.
	s.Require().NoError(sources.Delete(s.ctx, "s1"))
	_, err = store.Get(s.ctx, "h1")
	s.NoError(err)

	ids, err := store.DeleteOrphans(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"h1"}, ids)

	_, err = store.Get(s.ctx, "h1")
	s.True(domain.IsNotFound(err))
}

func (s *PostgresIntegrationSuite) TestCycleStore_RetentionAndLatest() {
	store := NewCycleStore(s.db)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.Append(s.ctx, &domain.CycleRecord{
			ID:        string(rune('a' + i)),
			Timestamp: base.AddDate(0, 0, i),
			Status:    domain.CycleSuccess,
		})
		s.Require().NoError(err)
	}

	latest, err := store.Latest(s.ctx)
	s.Require().NoError(err)
	s.Equal("e", latest.ID)

	pruned, err := store.PruneOldest(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(3, pruned)

	// Limit 0 means everything that is left.
	all, err := store.List(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal("e", all[0].ID)
	s.Equal("d", all[1].ID)
}

func (s *PostgresIntegrationSuite) TestCycleStore_AppendIsIdempotent() {
	store := NewCycleStore(s.db)
	rec := &domain.CycleRecord{ID: "c1", Timestamp: time.Now().Truncate(time.Microsecond), Status: domain.CycleFailed}

	s.Require().NoError(store.Append(s.ctx, rec))
	s.Require().NoError(store.Append(s.ctx, rec))

	all, err := store.List(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *PostgresIntegrationSuite) TestDeliveryStore_RoundTrip() {
	store := NewDeliveryStore(s.db)
	rec := &domain.DeliveryRecord{
		ID:           "d1",
		Timestamp:    time.Now().Truncate(time.Microsecond),
		Recipient:    "reader@example.com",
		HighlightIDs: []string{"h1", "h2"},
		Status:       domain.DeliverySent,
	}

	s.Require().NoError(store.Append(s.ctx, rec))

	all, err := store.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal([]string{"h1", "h2"}, all[0].HighlightIDs)
	s.Equal(domain.DeliverySent, all[0].Status)
}

func (s *PostgresIntegrationSuite) TestSnapshot_ExportImportRoundTrip() {
	sources := NewSourceStore(s.db)
	store := NewHighlightStore(s.db)
	cycles := NewCycleStore(s.db)
	deliveries := NewDeliveryStore(s.db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	maint := service.NewMaintenanceService(sources, store, cycles, deliveries, NewTransactionManager(s.db), logger)

	now := time.Now().Truncate(time.Microsecond)
	s.Require().NoError(sources.Upsert(s.ctx, &domain.Source{
		ID: "s1", Title: "First Book", Creator: "Author One",
		CoverRef: utils.Ptr("https://covers.example.com/1.jpg"), LastUpdated: now,
	}))
	s.Require().NoError(sources.Upsert(s.ctx, &domain.Source{
		ID: "s2", Title: "Second Book", Creator: "Author Two", LastUpdated: now,
	}))

	h1 := s.newHighlight("h1", "s1")
	h1.Note = "worth rereading"
	h1.Tags = []string{"stoicism", "ethics"}
	h2 := s.newHighlight("h2", "s2")
	for _, h := range []*domain.Highlight{h1, h2} {
		_, err := store.Upsert(s.ctx, h)
		s.Require().NoError(err)
	}
	s.Require().NoError(store.CommitShown(s.ctx, "h1", now))

	s.Require().NoError(cycles.Append(s.ctx, &domain.CycleRecord{ID: "c1", Timestamp: now, Status: domain.CycleSuccess}))
	s.Require().NoError(deliveries.Append(s.ctx, &domain.DeliveryRecord{
		ID: "d1", Timestamp: now, Recipient: "reader@example.com",
		HighlightIDs: []string{"h1"}, Status: domain.DeliverySent,
	}))

	snap, err := maint.ExportAll(s.ctx)
	s.Require().NoError(err)
	before := append([]domain.Highlight(nil), snap.Highlights...)
	beforeSources := append([]domain.Source(nil), snap.Sources...)

	s.Require().NoError(maint.ClearAll(s.ctx))

	report, err := maint.ImportAll(s.ctx, snap, service.ImportOptions{Overwrite: true})
	s.Require().NoError(err)
	s.Equal(2, report.SourcesAdded)
	s.Equal(2, report.HighlightsAdded)
	s.Empty(report.Rejected)

	for _, want := range beforeSources {
		got, err := sources.Get(s.ctx, want.ID)
		s.Require().NoError(err)
		s.Equal(want.Title, got.Title)
		s.Equal(want.Creator, got.Creator)
		s.Equal(want.CoverRef, got.CoverRef)
		s.True(got.LastUpdated.Equal(want.LastUpdated))
	}
	for _, want := range before {
		got, err := store.Get(s.ctx, want.ID)
		s.Require().NoError(err)
		s.Equal(want.Text, got.Text)
		s.Equal(want.SourceID, got.SourceID)
		s.Equal(want.Category, got.Category)
		s.Equal(want.Note, got.Note)
		s.Equal(want.Tags, got.Tags)
		s.Equal(want.TimesShown, got.TimesShown)
		s.True(got.DateCreated.Equal(want.DateCreated))
		s.True(got.DateIngested.Equal(want.DateIngested))
		if want.LastShownAt == nil {
			s.Nil(got.LastShownAt)
		} else {
			s.Require().NotNil(got.LastShownAt)
			s.True(got.LastShownAt.Equal(*want.LastShownAt))
		}
	}

	latest, err := cycles.Latest(s.ctx)
	s.Require().NoError(err)
	s.Equal("c1", latest.ID)

	recs, err := deliveries.List(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal([]string{"h1"}, recs[0].HighlightIDs)
}

func (s *PostgresIntegrationSuite) TestHighlightStore_PutUnknownSourceIsConstraint() {
	store := NewHighlightStore(s.db)

	err := store.Put(s.ctx, s.newHighlight("h1", "ghost"))
	s.True(domain.IsConstraint(err))

	_, getErr := store.Get(s.ctx, "h1")
	s.True(domain.IsNotFound(getErr))
}

func (s *PostgresIntegrationSuite) TestHighlightStore_ApplyPatchRejectsBlankText() {
	s.seedSource("s1")
	store := NewHighlightStore(s.db)

	_, err := store.Upsert(s.ctx, s.newHighlight("h1", "s1"))
	s.Require().NoError(err)

	err = store.ApplyPatch(s.ctx, "h1", domain.HighlightPatch{Text: utils.Ptr("")})
	s.True(domain.IsValidation(err))

	got, err := store.Get(s.ctx, "h1")
	s.Require().NoError(err)
	s.Equal("Text of h1", got.Text)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollsBackOnError() {
	s.seedSource("s1")
	tm := NewTransactionManager(s.db)
	store := NewHighlightStore(s.db)

	sentinel := errors.New("boom")
	err := tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if _, err := store.Upsert(txCtx, s.newHighlight("h1", "s1")); err != nil {
			return err
		}
		return sentinel
	})
	s.ErrorIs(err, sentinel)

	_, err = store.Get(s.ctx, "h1")
	s.True(domain.IsNotFound(err))
}
