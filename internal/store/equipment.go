// Package store provides the postgres-backed collections owned by the
// pipeline: the equipment record store and the upload history ledger.
// Both are insert/delete only; nothing is ever updated in place.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EquipmentStore persists validated equipment records. Pure storage, no
// business logic: it does not deduplicate across uploads.
type EquipmentStore struct {
	pool *pgxpool.Pool
}

// NewEquipmentStore creates a store backed by the given pool.
func NewEquipmentStore(pool *pgxpool.Pool) *EquipmentStore {
	return &EquipmentStore{pool: pool}
}

// InsertBatch persists all records from one upload atomically: the COPY
// runs inside a single transaction, so a mid-batch failure leaves no
// partial dataset behind. created_at is assigned by the database.
func (s *EquipmentStore) InsertBatch(ctx context.Context, records []pipeline.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"equipment"},
		[]string{"name", "category", "flow_rate", "pressure", "temperature"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.Name, r.Category, r.FlowRate, r.Pressure, r.Temperature}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}
	if copied != int64(len(records)) {
		return fmt.Errorf("copy records: wrote %d of %d rows", copied, len(records))
	}

	return tx.Commit(ctx)
}

// EquipmentRow is one persisted equipment record.
type EquipmentRow struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Category    string    `db:"category" json:"category"`
	FlowRate    float64   `db:"flow_rate" json:"flow_rate"`
	Pressure    float64   `db:"pressure" json:"pressure"`
	Temperature float64   `db:"temperature" json:"temperature"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// List returns every persisted record in insertion order. A full scan is
// fine at the bounded, demo-scale volumes this store targets.
func (s *EquipmentStore) List(ctx context.Context) ([]EquipmentRow, error) {
	var rows []EquipmentRow
	err := pgxscan.Select(ctx, s.pool, &rows,
		`SELECT id, name, category, flow_rate, pressure, temperature, created_at
		 FROM equipment ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	return rows, nil
}

// Count returns the total number of persisted records.
func (s *EquipmentStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM equipment`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count equipment: %w", err)
	}
	return n, nil
}
