package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"highlight_courier/internal/domain"
)

type DeliveryStore struct {
	db *sqlx.DB
}

func NewDeliveryStore(db *sqlx.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

type deliveryRow struct {
	domain.DeliveryRecord
	IDList pq.StringArray `db:"highlight_ids"`
}

func (s *DeliveryStore) Append(ctx context.Context, rec *domain.DeliveryRecord) error {
	query := `
		INSERT INTO delivery_records (id, timestamp, recipient, highlight_ids, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.Recipient, pq.StringArray(rec.HighlightIDs), rec.Status,
	)
	if err != nil {
		return domain.NewStorage("append delivery record", err)
	}
	return nil
}

// List returns the most recent records first; limit 0 returns everything.
func (s *DeliveryStore) List(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	var rows []deliveryRow
	query := `
		SELECT id, timestamp, recipient, highlight_ids, status
		FROM delivery_records ORDER BY timestamp DESC LIMIT NULLIF($1, 0)`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, limit); err != nil {
		return nil, domain.NewStorage("list delivery records", err)
	}

	recs := make([]domain.DeliveryRecord, len(rows))
	for i := range rows {
		recs[i] = rows[i].DeliveryRecord
		recs[i].HighlightIDs = []string(rows[i].IDList)
	}
	return recs, nil
}

// PruneOldest keeps the most recent `keep` records and reports how many were
// removed.
func (s *DeliveryStore) PruneOldest(ctx context.Context, keep int) (int, error) {
	query := `
		DELETE FROM delivery_records
		WHERE id NOT IN (
			SELECT id FROM delivery_records ORDER BY timestamp DESC LIMIT $1
		)`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, keep)
	if err != nil {
		return 0, domain.NewStorage("prune delivery records", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *DeliveryStore) Clear(ctx context.Context) error {
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM delivery_records`); err != nil {
		return domain.NewStorage("clear delivery records", err)
	}
	return nil
}
