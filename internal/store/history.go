package store

import (
	"context"
	"fmt"
	"time"

	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxEntries is the history retention used when none is configured.
const DefaultMaxEntries = 5

// HistoryLedger is the size-bounded log of past ingestions. It holds at
// most maxEntries rows at all times, newest first.
type HistoryLedger struct {
	pool       *pgxpool.Pool
	maxEntries int
}

// NewHistoryLedger creates a ledger retaining up to maxEntries entries.
func NewHistoryLedger(pool *pgxpool.Pool, maxEntries int) *HistoryLedger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &HistoryLedger{pool: pool, maxEntries: maxEntries}
}

// RecordAndTrim appends the entry and deletes everything beyond the
// newest maxEntries. The advisory lock serializes concurrent calls: at
// READ COMMITTED each trim would otherwise run against a snapshot that
// misses the other transaction's uncommitted insert, leaving more than
// maxEntries rows behind after both commit.
func (l *HistoryLedger) RecordAndTrim(ctx context.Context, entry pipeline.LedgerEntry) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Released automatically at commit or rollback.
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('upload_history'))`)
	if err != nil {
		return fmt.Errorf("lock history ledger: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO upload_history (original_filename, summary, report_path)
		 VALUES ($1, $2, $3)`,
		entry.OriginalFilename, entry.Summary, entry.ReportPath)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	// id breaks ties between entries sharing an uploaded_at timestamp.
	_, err = tx.Exec(ctx,
		`DELETE FROM upload_history
		 WHERE id NOT IN (
		     SELECT id FROM upload_history
		     ORDER BY uploaded_at DESC, id DESC
		     LIMIT $1
		 )`,
		l.maxEntries)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit(ctx)
}

// HistoryEntry is one retained log line for a past ingestion.
type HistoryEntry struct {
	ID               int64     `db:"id" json:"-"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	Summary          string    `db:"summary" json:"summary"`
	ReportPath       string    `db:"report_path" json:"report_path"`
}

// ListRecent returns up to maxEntries entries, newest first.
func (l *HistoryLedger) ListRecent(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := pgxscan.Select(ctx, l.pool, &entries,
		`SELECT id, uploaded_at, original_filename, summary, report_path
		 FROM upload_history
		 ORDER BY uploaded_at DESC, id DESC
		 LIMIT $1`,
		l.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
