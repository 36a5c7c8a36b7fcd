package pipeline

// errors.go defines the typed error taxonomy for the upload pipeline.
//
// Validation errors (missing file, missing columns, parse errors) are
// detected before any side effect. PersistenceError and
// ReportGenerationError occur after partial work and carry enough context
// for a caller to tell "nothing happened" from "some side effects
// occurred". Callers branch on Kind, never on error text.

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced to callers. These are stable identifiers; the
// web layer maps them to HTTP status codes and JSON payloads.
const (
	KindMissingFile      = "missing_file"
	KindMissingColumns   = "missing_columns"
	KindParseError       = "parse_error"
	KindPersistence      = "persistence_error"
	KindReportGeneration = "report_generation_error"
	KindTooManyUploads   = "too_many_uploads"
	KindUnexpected       = "unexpected_error"
)

// ErrMissingFile is returned when no file payload was supplied.
var ErrMissingFile = errors.New("no file provided")

// MissingColumnsError reports required columns absent from the CSV header.
// Missing is sorted; Seen lists every header observed after normalization.
type MissingColumnsError struct {
	Missing []string
	Seen    []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("CSV is missing required column(s): %s", strings.Join(e.Missing, ", "))
}

// ParseError reports a cell that could not be interpreted as the expected
// type. Row is 1-based over data rows (the header row is not counted).
type ParseError struct {
	Row    int
	Column string
	Value  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: invalid numeric value %q in column %q", e.Row, e.Value, e.Column)
}

// PersistenceError wraps a failure of the durable store to complete the
// batch write. No rows from this upload were committed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist records: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ReportGenerationError wraps a failure to render or write the report
// artifact. The upload's rows were already committed: RowsPersisted tells
// the caller how many, so partial success is distinguishable from full
// failure.
type ReportGenerationError struct {
	Err           error
	RowsPersisted int
}

func (e *ReportGenerationError) Error() string { return fmt.Sprintf("generate report: %v", e.Err) }
func (e *ReportGenerationError) Unwrap() error { return e.Err }

// Kind classifies an error into one of the taxonomy identifiers.
func Kind(err error) string {
	var (
		missingCols *MissingColumnsError
		parseErr    *ParseError
		persistErr  *PersistenceError
		reportErr   *ReportGenerationError
	)
	switch {
	case errors.Is(err, ErrMissingFile):
		return KindMissingFile
	case errors.Is(err, ErrTooManyUploads):
		return KindTooManyUploads
	case errors.As(err, &missingCols):
		return KindMissingColumns
	case errors.As(err, &parseErr):
		return KindParseError
	case errors.As(err, &persistErr):
		return KindPersistence
	case errors.As(err, &reportErr):
		return KindReportGeneration
	default:
		return KindUnexpected
	}
}

// IsValidation reports whether the error was detected before any side
// effect (nothing was persisted, no report was written).
func IsValidation(err error) bool {
	switch Kind(err) {
	case KindMissingFile, KindMissingColumns, KindParseError:
		return true
	}
	return false
}
