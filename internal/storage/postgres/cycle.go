package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"highlight_courier/internal/domain"
)

type CycleStore struct {
	db *sqlx.DB
}

func NewCycleStore(db *sqlx.DB) *CycleStore {
	return &CycleStore{db: db}
}

func (s *CycleStore) Append(ctx context.Context, rec *domain.CycleRecord) error {
	query := `
		INSERT INTO cycle_records (id, timestamp, items_added, items_total, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.ItemsAdded, rec.ItemsTotal, rec.Status, rec.ErrorMessage,
	)
	if err != nil {
		return domain.NewStorage("append cycle record", err)
	}
	return nil
}

func (s *CycleStore) Latest(ctx context.Context) (*domain.CycleRecord, error) {
	var rec domain.CycleRecord
	query := `
		SELECT id, timestamp, items_added, items_total, status, error_message
		FROM cycle_records ORDER BY timestamp DESC LIMIT 1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &rec, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("no cycle records")
	}
	if err != nil {
		return nil, domain.NewStorage("latest cycle record", err)
	}
	return &rec, nil
}

// List returns the most recent records first; limit 0 returns everything.
func (s *CycleStore) List(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	var recs []domain.CycleRecord
	query := `
		SELECT id, timestamp, items_added, items_total, status, error_message
		FROM cycle_records ORDER BY timestamp DESC LIMIT NULLIF($1, 0)`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &recs, query, limit); err != nil {
		return nil, domain.NewStorage("list cycle records", err)
	}
	return recs, nil
}

// PruneOldest keeps the most recent `keep` records and reports how many were
// removed.
func (s *CycleStore) PruneOldest(ctx context.Context, keep int) (int, error) {
	query := `
		DELETE FROM cycle_records
		WHERE id NOT IN (
			SELECT id FROM cycle_records ORDER BY timestamp DESC LIMIT $1
		)`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, keep)
	if err != nil {
		return 0, domain.NewStorage("prune cycle records", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *CycleStore) Clear(ctx context.Context) error {
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM cycle_records`); err != nil {
		return domain.NewStorage("clear cycle records", err)
	}
	return nil
}
