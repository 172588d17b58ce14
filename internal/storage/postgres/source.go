package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"highlight_courier/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// Upsert inserts or updates a source. last_updated only ever moves forward.
func (s *SourceStore) Upsert(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (id, title, creator, cover_ref, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			creator = EXCLUDED.creator,
			cover_ref = COALESCE(EXCLUDED.cover_ref, sources.cover_ref),
			last_updated = GREATEST(sources.last_updated, EXCLUDED.last_updated)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		src.ID, src.Title, src.Creator, src.CoverRef, src.LastUpdated,
	)
	if err != nil {
		return domain.NewStorage("upsert source", err)
	}
	return nil
}

func (s *SourceStore) Get(ctx context.Context, id string) (*domain.Source, error) {
	var src domain.Source
	query := `SELECT id, title, creator, cover_ref, last_updated FROM sources WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &src, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("source %s", id)
	}
	if err != nil {
		return nil, domain.NewStorage("get source", err)
	}
	return &src, nil
}

func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	query := `SELECT id, title, creator, cover_ref, last_updated FROM sources ORDER BY title`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query); err != nil {
		return nil, domain.NewStorage("list sources", err)
	}
	return sources, nil
}

// Delete removes a source without touching its highlights. Orphans are left
// for maintenance cleanup so removal stays auditable.
func (s *SourceStore) Delete(ctx context.Context, id string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return domain.NewStorage("delete source", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("source %s", id)
	}
	return nil
}

func (s *SourceStore) Clear(ctx context.Context) error {
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return domain.NewStorage("clear sources", err)
	}
	return nil
}
