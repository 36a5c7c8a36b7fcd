package pipeline

import (
	"context"
	"time"

	"github.com/equipflow/equipflow/internal/logging"
	"github.com/equipflow/equipflow/internal/metrics"
	"github.com/google/uuid"
)

// RecordStore persists validated records as a single atomic batch:
// either every record becomes durable or none does.
type RecordStore interface {
	InsertBatch(ctx context.Context, records []Record) error
}

// ReportWriter renders the summary into a durable report artifact and
// returns a stable relative reference to it.
type ReportWriter interface {
	Generate(summary Summary, originalFilename string, generatedAt time.Time) (string, error)
}

// Ledger appends a history entry and trims the history to its retained
// maximum as one serialized unit.
type Ledger interface {
	RecordAndTrim(ctx context.Context, entry LedgerEntry) error
}

// Options configures a Pipeline at construction time. There is no
// module-level mutable configuration: everything is passed in here so
// tests can run isolated pipelines in parallel.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Metrics       *metrics.Metrics
}

// Pipeline processes one upload at a time per call: validate, parse,
// aggregate, persist, render the report, then record history.
type Pipeline struct {
	store   RecordStore
	reports ReportWriter
	ledger  Ledger
	limiter *Limiter
	metrics *metrics.Metrics
}

// New wires a Pipeline from its collaborators.
func New(store RecordStore, reports ReportWriter, ledger Ledger, opts Options) *Pipeline {
	return &Pipeline{
		store:   store,
		reports: reports,
		ledger:  ledger,
		limiter: NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		metrics: opts.Metrics,
	}
}

// Process runs the full pipeline for one upload synchronously.
//
// Failure ordering follows the cancellation policy: validation errors are
// returned before any side effect; a persistence error means nothing was
// committed; a report error means rows are already durable (partial
// success); a ledger failure is logged and never fails the upload, since
// the records and the report both already exist.
func (p *Pipeline) Process(ctx context.Context, fileName string, data []byte) (*Result, error) {
	start := time.Now()

	fail := func(err error) (*Result, error) {
		p.metrics.ObserveUpload(Kind(err), time.Since(start))
		return nil, err
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return fail(err)
	}
	defer p.limiter.Release()

	uploadID := uuid.New().String()
	logger := logging.FromContext(ctx).With("upload_id", uploadID, "file", fileName)

	records, err := Parse(data)
	if err != nil {
		logger.Info("upload rejected", "kind", Kind(err), "error", err)
		return fail(err)
	}

	summary := Summarize(records)

	if err := p.store.InsertBatch(ctx, records); err != nil {
		logger.Error("batch insert failed", "rows", len(records), "error", err)
		return fail(&PersistenceError{Err: err})
	}
	p.metrics.AddRowsPersisted(len(records))

	reportPath, err := p.reports.Generate(summary, fileName, time.Now())
	if err != nil {
		logger.Error("report generation failed after persistence",
			"rows_persisted", summary.RecordCount, "error", err)
		return fail(&ReportGenerationError{Err: err, RowsPersisted: summary.RecordCount})
	}

	entry := LedgerEntry{
		OriginalFilename: fileName,
		Summary:          SummaryText(summary),
		ReportPath:       reportPath,
	}
	if err := p.ledger.RecordAndTrim(ctx, entry); err != nil {
		// Records and report are already durable; losing a ledger line is
		// not worth failing the upload over.
		logger.Warn("history ledger write failed", "error", err)
	}

	duration := time.Since(start)
	logger.Info("upload processed",
		"rows", summary.RecordCount,
		"report", reportPath,
		"duration_ms", duration.Milliseconds(),
	)
	p.metrics.ObserveUpload("success", duration)

	return &Result{
		UploadID:   uploadID,
		FileName:   fileName,
		Summary:    summary,
		ReportPath: reportPath,
		Duration:   duration,
	}, nil
}

// WaitForUploads blocks until in-flight uploads drain or ctx expires.
// Used during graceful shutdown.
func (p *Pipeline) WaitForUploads(ctx context.Context) error {
	return p.limiter.WaitForDrain(ctx)
}

// ActiveUploads returns the number of uploads currently being processed.
func (p *Pipeline) ActiveUploads() int {
	return p.limiter.ActiveCount()
}
