package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"highlight_courier/internal/domain"
)

type HighlightStore struct {
	db *sqlx.DB
}

func NewHighlightStore(db *sqlx.DB) *HighlightStore {
	return &HighlightStore{db: db}
}

const highlightColumns = `
	id, source_id, text, location_label, page_number,
	date_created, date_ingested, category, note, tags,
	times_shown, last_shown_at`

type highlightRow struct {
	domain.Highlight
	TagList pq.StringArray `db:"tags"`
}

func (r *highlightRow) toDomain() domain.Highlight {
	h := r.Highlight
	h.Tags = []string(r.TagList)
	return h
}

func toDomainList(rows []highlightRow) []domain.Highlight {
	out := make([]domain.Highlight, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

// Upsert stores a new highlight. Re-ingesting an identical excerpt (same
// derived id) is a no-op: date_ingested and the show history keep their
// first-seen values. Returns whether a row was actually inserted.
func (s *HighlightStore) Upsert(ctx context.Context, h *domain.Highlight) (bool, error) {
	ex := GetExecutor(ctx, s.db)

	var sourceExists bool
	err := ex.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)`, h.SourceID,
	).Scan(&sourceExists)
	if err != nil {
		return false, domain.NewStorage("check source", err)
	}
	if !sourceExists {
		return false, domain.NewConstraint("highlight %s references unknown source %s", h.ID, h.SourceID)
	}

	query := `
		INSERT INTO highlights (` + highlightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	res, err := ex.ExecContext(ctx, query,
		h.ID, h.SourceID, h.Text, h.LocationLabel, h.PageNumber,
		h.DateCreated, h.DateIngested, h.Category, h.Note, pq.StringArray(h.Tags),
		h.TimesShown, h.LastShownAt,
	)
	if err != nil {
		return false, domain.NewStorage("upsert highlight", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Put writes every field, replacing an existing row. Used by snapshot import
// with overwrite, where the show history travels with the record. Like
// Upsert, the source must already exist.
func (s *HighlightStore) Put(ctx context.Context, h *domain.Highlight) error {
	ex := GetExecutor(ctx, s.db)

	var sourceExists bool
	err := ex.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)`, h.SourceID,
	).Scan(&sourceExists)
	if err != nil {
		return domain.NewStorage("check source", err)
	}
	if !sourceExists {
		return domain.NewConstraint("highlight %s references unknown source %s", h.ID, h.SourceID)
	}

	query := `
		INSERT INTO highlights (` + highlightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			text = EXCLUDED.text,
			location_label = EXCLUDED.location_label,
			page_number = EXCLUDED.page_number,
			date_created = EXCLUDED.date_created,
			date_ingested = EXCLUDED.date_ingested,
			category = EXCLUDED.category,
			note = EXCLUDED.note,
			tags = EXCLUDED.tags,
			times_shown = EXCLUDED.times_shown,
			last_shown_at = EXCLUDED.last_shown_at`

	_, err = ex.ExecContext(ctx, query,
		h.ID, h.SourceID, h.Text, h.LocationLabel, h.PageNumber,
		h.DateCreated, h.DateIngested, h.Category, h.Note, pq.StringArray(h.Tags),
		h.TimesShown, h.LastShownAt,
	)
	if err != nil {
		return domain.NewStorage("put highlight", err)
	}
	return nil
}

func (s *HighlightStore) Get(ctx context.Context, id string) (*domain.Highlight, error) {
	var row highlightRow
	query := `SELECT ` + highlightColumns + ` FROM highlights WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("highlight %s", id)
	}
	if err != nil {
		return nil, domain.NewStorage("get highlight", err)
	}
	h := row.toDomain()
	return &h, nil
}

func (s *HighlightStore) List(ctx context.Context) ([]domain.Highlight, error) {
	var rows []highlightRow
	query := `SELECT ` + highlightColumns + ` FROM highlights ORDER BY date_ingested DESC, id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, domain.NewStorage("list highlights", err)
	}
	return toDomainList(rows), nil
}

func (s *HighlightStore) ListBySource(ctx context.Context, sourceID string) ([]domain.Highlight, error) {
	var rows []highlightRow
	query := `SELECT ` + highlightColumns + ` FROM highlights WHERE source_id = $1 ORDER BY date_created`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, sourceID); err != nil {
		return nil, domain.NewStorage("list highlights by source", err)
	}
	return toDomainList(rows), nil
}

func (s *HighlightStore) Delete(ctx context.Context, id string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM highlights WHERE id = $1`, id)
	if err != nil {
		return domain.NewStorage("delete highlight", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("highlight %s", id)
	}
	return nil
}

// ApplyPatch updates the user-editable fields of one highlight. Nil patch
// fields are left untouched. The schema has no CHECK constraints, so the
// patch invariants are enforced here.
func (s *HighlightStore) ApplyPatch(ctx context.Context, id string, patch domain.HighlightPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE highlights SET
			text = COALESCE($2, text),
			note = COALESCE($3, note),
			category = COALESCE($4, category),
			tags = COALESCE($5, tags),
			location_label = COALESCE($6, location_label)
		WHERE id = $1`

	var tags *pq.StringArray
	if patch.Tags != nil {
		arr := pq.StringArray(*patch.Tags)
		tags = &arr
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id, patch.Text, patch.Note, patch.Category, tags, patch.LocationLabel,
	)
	if err != nil {
		return domain.NewStorage("patch highlight", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("highlight %s", id)
	}
	return nil
}

// CommitShown bumps the show counter for one highlight. The increment happens
// in SQL so a concurrent commit is never lost to a read-modify-write race.
func (s *HighlightStore) CommitShown(ctx context.Context, id string, shownAt time.Time) error {
	query := `
		UPDATE highlights SET
			times_shown = times_shown + 1,
			last_shown_at = $2
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, shownAt)
	if err != nil {
		return domain.NewStorage("commit shown", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("highlight %s", id)
	}
	return nil
}

// DeleteOrphans removes highlights whose source no longer exists and returns
// the ids that were removed.
func (s *HighlightStore) DeleteOrphans(ctx context.Context) ([]string, error) {
	query := `
		DELETE FROM highlights h
		WHERE NOT EXISTS (SELECT 1 FROM sources s WHERE s.id = h.source_id)
		RETURNING h.id`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query)
	if err != nil {
		return nil, domain.NewStorage("delete orphans", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorage("scan orphan id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *HighlightStore) Clear(ctx context.Context) error {
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM highlights`); err != nil {
		return domain.NewStorage("clear highlights", err)
	}
	return nil
}
