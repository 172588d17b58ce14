package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"highlight_courier/internal/domain"
)

// Extractor is the external collaborator that discovers sources and
// highlights. It returns partial batches with per-item errors rather than
// failing wholesale.
type Extractor interface {
	ID() string
	Name() string
	FetchBatch(ctx context.Context, maxPages int) (*domain.ExtractBatch, error)
}

type SourceStore interface {
	Upsert(ctx context.Context, src *domain.Source) error
	Get(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type HighlightStore interface {
	Upsert(ctx context.Context, h *domain.Highlight) (bool, error)
	Put(ctx context.Context, h *domain.Highlight) error
	Get(ctx context.Context, id string) (*domain.Highlight, error)
	List(ctx context.Context) ([]domain.Highlight, error)
	ListBySource(ctx context.Context, sourceID string) ([]domain.Highlight, error)
	Delete(ctx context.Context, id string) error
	ApplyPatch(ctx context.Context, id string, patch domain.HighlightPatch) error
	CommitShown(ctx context.Context, id string, shownAt time.Time) error
	DeleteOrphans(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type CycleStore interface {
	Append(ctx context.Context, rec *domain.CycleRecord) error
	Latest(ctx context.Context) (*domain.CycleRecord, error)
	List(ctx context.Context, limit int) ([]domain.CycleRecord, error)
	PruneOldest(ctx context.Context, keep int) (int, error)
	Clear(ctx context.Context) error
}

type DeliveryStore interface {
	Append(ctx context.Context, rec *domain.DeliveryRecord) error
	List(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	PruneOldest(ctx context.Context, keep int) (int, error)
	Clear(ctx context.Context) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier is the external collaborator that renders and transmits a
// deliverable, reporting the outcome.
type Notifier interface {
	Deliver(ctx context.Context, d *domain.Deliverable) (*domain.DeliveryResult, error)
	Close() error
}
