// Package pipeline implements the CSV upload processing pipeline:
// validate → parse → aggregate → persist → report → record history.
// This package has no HTTP dependencies and can be driven by any frontend.
package pipeline

import "time"

// Record is one validated equipment row from an uploaded CSV file.
type Record struct {
	Name        string
	Category    string
	FlowRate    float64
	Pressure    float64
	Temperature float64
}

// Summary holds the aggregate statistics computed for one upload.
// It is held only long enough to drive report generation and the
// history entry; it is never persisted itself.
type Summary struct {
	RecordCount          int
	AvgFlowRate          float64
	AvgPressure          float64
	AvgTemperature       float64
	CategoryDistribution map[string]int
}

// LedgerEntry is the history record written after a completed upload.
type LedgerEntry struct {
	OriginalFilename string
	Summary          string
	ReportPath       string
}

// Result is the outcome of a fully processed upload.
type Result struct {
	UploadID   string
	FileName   string
	Summary    Summary
	ReportPath string
	Duration   time.Duration
}
