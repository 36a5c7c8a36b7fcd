package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/equipflow/equipflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeStore records InsertBatch calls and can be primed to fail.
type fakeStore struct {
	batches [][]Record
	err     error
}

func (f *fakeStore) InsertBatch(_ context.Context, records []Record) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, records)
	return nil
}

// fakeReports records Generate calls and can be primed to fail.
type fakeReports struct {
	calls int
	path  string
	err   error
}

func (f *fakeReports) Generate(_ Summary, _ string, _ time.Time) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

// fakeLedger records entries and can be primed to fail.
type fakeLedger struct {
	entries []LedgerEntry
	err     error
}

func (f *fakeLedger) RecordAndTrim(_ context.Context, entry LedgerEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func newTestPipeline(store *fakeStore, reports *fakeReports, ledger *fakeLedger) *Pipeline {
	return New(store, reports, ledger, Options{MaxConcurrent: 2, MaxWait: time.Second})
}

func TestProcess_Success(t *testing.T) {
	store := &fakeStore{}
	reports := &fakeReports{path: "reports/Equipment_Summary_Report_20250101_120000.pdf"}
	ledger := &fakeLedger{}
	p := newTestPipeline(store, reports, ledger)

	result, err := p.Process(context.Background(), "plant.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.UploadID == "" {
		t.Error("UploadID is empty")
	}
	if result.FileName != "plant.csv" {
		t.Errorf("FileName = %q, want plant.csv", result.FileName)
	}
	if result.Summary.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", result.Summary.RecordCount)
	}
	if result.ReportPath != reports.path {
		t.Errorf("ReportPath = %q, want %q", result.ReportPath, reports.path)
	}

	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Errorf("store received %v, want one batch of 2 records", store.batches)
	}
	if reports.calls != 1 {
		t.Errorf("reports.calls = %d, want 1", reports.calls)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("ledger received %d entries, want 1", len(ledger.entries))
	}

	entry := ledger.entries[0]
	if entry.OriginalFilename != "plant.csv" {
		t.Errorf("entry.OriginalFilename = %q, want plant.csv", entry.OriginalFilename)
	}
	if entry.ReportPath != reports.path {
		t.Errorf("entry.ReportPath = %q, want %q", entry.ReportPath, reports.path)
	}
	wantSummary := "Total: 2, Avg Flowrate: 7.50, Avg Pressure: 1.70, Avg Temperature: 60.00"
	if entry.Summary != wantSummary {
		t.Errorf("entry.Summary = %q, want %q", entry.Summary, wantSummary)
	}
}

func TestProcess_ValidationFailureHasNoSideEffects(t *testing.T) {
	store := &fakeStore{}
	reports := &fakeReports{path: "reports/x.pdf"}
	ledger := &fakeLedger{}
	p := newTestPipeline(store, reports, ledger)

	_, err := p.Process(context.Background(), "bad.csv", []byte("Equipment Name,Type\nPump,Pump\n"))

	if Kind(err) != KindMissingColumns {
		t.Fatalf("Kind = %q, want %q (err: %v)", Kind(err), KindMissingColumns, err)
	}
	if len(store.batches) != 0 {
		t.Error("store was called for a rejected upload")
	}
	if reports.calls != 0 {
		t.Error("report generator was called for a rejected upload")
	}
	if len(ledger.entries) != 0 {
		t.Error("ledger was written for a rejected upload")
	}
}

func TestProcess_StoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	reports := &fakeReports{path: "reports/x.pdf"}
	ledger := &fakeLedger{}
	p := newTestPipeline(store, reports, ledger)

	_, err := p.Process(context.Background(), "plant.csv", []byte(sampleCSV))

	if Kind(err) != KindPersistence {
		t.Fatalf("Kind = %q, want %q (err: %v)", Kind(err), KindPersistence, err)
	}
	if reports.calls != 0 {
		t.Error("report generator was called after a failed insert")
	}
	if len(ledger.entries) != 0 {
		t.Error("ledger was written after a failed insert")
	}
}

func TestProcess_ReportFailureAfterPersistence(t *testing.T) {
	store := &fakeStore{}
	reports := &fakeReports{err: errors.New("disk full")}
	ledger := &fakeLedger{}
	p := newTestPipeline(store, reports, ledger)

	_, err := p.Process(context.Background(), "plant.csv", []byte(sampleCSV))

	var reportErr *ReportGenerationError
	if !errors.As(err, &reportErr) {
		t.Fatalf("expected *ReportGenerationError, got %v", err)
	}
	if reportErr.RowsPersisted != 2 {
		t.Errorf("RowsPersisted = %d, want 2", reportErr.RowsPersisted)
	}
	if len(store.batches) != 1 {
		t.Error("rows should have been persisted before the report failure")
	}
	if len(ledger.entries) != 0 {
		t.Error("ledger was written after a failed report")
	}
}

func TestProcess_LedgerFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	reports := &fakeReports{path: "reports/x.pdf"}
	ledger := &fakeLedger{err: errors.New("deadlock detected")}
	p := newTestPipeline(store, reports, ledger)

	result, err := p.Process(context.Background(), "plant.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("Process failed on ledger error: %v", err)
	}
	if result.Summary.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", result.Summary.RecordCount)
	}
}

func TestProcess_RespectsConcurrencyLimit(t *testing.T) {
	store := &fakeStore{}
	reports := &fakeReports{path: "reports/x.pdf"}
	ledger := &fakeLedger{}
	reg := prometheus.NewRegistry()
	p := New(store, reports, ledger, Options{
		MaxConcurrent: 1,
		MaxWait:       50 * time.Millisecond,
		Metrics:       metrics.New(reg),
	})

	// Hold the only slot so Process has to wait and then give up.
	if err := p.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer p.limiter.Release()

	_, err := p.Process(context.Background(), "plant.csv", []byte(sampleCSV))
	if !errors.Is(err, ErrTooManyUploads) {
		t.Errorf("expected ErrTooManyUploads, got %v", err)
	}

	// The rejection counts as an upload outcome like every other failure.
	if got := uploadOutcomeCount(t, reg, KindTooManyUploads); got != 1 {
		t.Errorf("uploads_total{outcome=%q} = %v, want 1", KindTooManyUploads, got)
	}
}

// uploadOutcomeCount reads equipflow_uploads_total for one outcome label.
func uploadOutcomeCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "equipflow_uploads_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
