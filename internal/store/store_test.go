package store

// These tests need a real PostgreSQL instance and are skipped unless
// TEST_DATABASE_URL is set, e.g.
//
//	TEST_DATABASE_URL=postgres://localhost:5432/equipflow_test go test ./internal/store/

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/equipflow/equipflow/internal/db"
	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/jackc/pgx/v5/pgxpool"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	if _, err := pool.Exec(ctx, `TRUNCATE equipment, upload_history`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}

func TestEquipmentStore_InsertBatchRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewEquipmentStore(pool)

	records := []pipeline.Record{
		{Name: "Pump-101", Category: "Pump", FlowRate: 5.5, Pressure: 2.1, Temperature: 80},
		{Name: "Valve-202", Category: "Valve", FlowRate: 9.5, Pressure: 1.3, Temperature: 40},
	}
	if err := s.InsertBatch(ctx, records); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	rows, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Name != "Pump-101" || rows[1].Name != "Valve-202" {
		t.Errorf("rows out of insertion order: %v, %v", rows[0].Name, rows[1].Name)
	}
	if rows[0].FlowRate != 5.5 || rows[0].Pressure != 2.1 || rows[0].Temperature != 80 {
		t.Errorf("row values = %+v", rows[0])
	}
	if rows[0].CreatedAt.IsZero() {
		t.Error("created_at was not assigned")
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestEquipmentStore_InsertBatchEmpty(t *testing.T) {
	pool := testPool(t)
	s := NewEquipmentStore(pool)

	if err := s.InsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("InsertBatch(nil) failed: %v", err)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestEquipmentStore_NoDeduplication(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewEquipmentStore(pool)

	records := []pipeline.Record{
		{Name: "Pump-101", Category: "Pump", FlowRate: 5.5, Pressure: 2.1, Temperature: 80},
	}
	if err := s.InsertBatch(ctx, records); err != nil {
		t.Fatalf("first InsertBatch failed: %v", err)
	}
	if err := s.InsertBatch(ctx, records); err != nil {
		t.Fatalf("second InsertBatch failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2 (identical rows accumulate)", n)
	}
}

func TestHistoryLedger_RecordAndTrim(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	l := NewHistoryLedger(pool, 5)

	for i := 1; i <= 6; i++ {
		entry := pipeline.LedgerEntry{
			OriginalFilename: fmt.Sprintf("upload-%d.csv", i),
			Summary:          fmt.Sprintf("Total: %d, Avg Flowrate: 1.00, Avg Pressure: 1.00, Avg Temperature: 1.00", i),
			ReportPath:       fmt.Sprintf("reports/report-%d.pdf", i),
		}
		if err := l.RecordAndTrim(ctx, entry); err != nil {
			t.Fatalf("RecordAndTrim %d failed: %v", i, err)
		}
	}

	entries, err := l.ListRecent(ctx)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5 after trim", len(entries))
	}

	// Newest first; the first upload was trimmed away.
	if entries[0].OriginalFilename != "upload-6.csv" {
		t.Errorf("entries[0] = %q, want upload-6.csv", entries[0].OriginalFilename)
	}
	if entries[4].OriginalFilename != "upload-2.csv" {
		t.Errorf("entries[4] = %q, want upload-2.csv", entries[4].OriginalFilename)
	}
	for _, e := range entries {
		if e.OriginalFilename == "upload-1.csv" {
			t.Error("oldest entry survived the trim")
		}
		if e.UploadedAt.IsZero() {
			t.Error("uploaded_at was not assigned")
		}
	}
}

func TestHistoryLedger_ConcurrentRecordAndTrim(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	l := NewHistoryLedger(pool, 5)

	// Concurrent appenders must never leave more than maxEntries behind,
	// even transiently between uploads.
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := pipeline.LedgerEntry{
				OriginalFilename: fmt.Sprintf("concurrent-%d.csv", i),
				Summary:          "Total: 1, Avg Flowrate: 1.00, Avg Pressure: 1.00, Avg Temperature: 1.00",
				ReportPath:       fmt.Sprintf("reports/concurrent-%d.pdf", i),
			}
			if err := l.RecordAndTrim(ctx, entry); err != nil {
				t.Errorf("RecordAndTrim %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var n int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM upload_history`).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n > 5 {
		t.Errorf("upload_history holds %d rows after concurrent writes, want at most 5", n)
	}
}

func TestHistoryLedger_DefaultMaxEntries(t *testing.T) {
	l := NewHistoryLedger(nil, 0)
	if l.maxEntries != DefaultMaxEntries {
		t.Errorf("maxEntries = %d, want %d", l.maxEntries, DefaultMaxEntries)
	}
}
