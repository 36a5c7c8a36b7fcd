package pipeline

// parser.go turns raw uploaded bytes into an ordered slice of Records or
// a typed validation error. It is a pure function over the byte stream:
// no side effects, safe to call before any persistence happens.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RequiredColumns are the header names an upload must contain, compared
// after BOM and whitespace normalization. Extra columns are ignored and
// column order is irrelevant.
var RequiredColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

// Parse validates and parses an uploaded CSV payload into Records in file
// order. On failure it returns a *MissingColumnsError or *ParseError.
func Parse(data []byte) ([]Record, error) {
	rows, err := readCSV(sanitizeUTF8(data))
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(rows) == 0 {
		missing := append([]string(nil), RequiredColumns...)
		sort.Strings(missing)
		return nil, &MissingColumnsError{Missing: missing}
	}

	headers := normalizeHeaders(rows[0])
	idx, missing := indexHeaders(headers)
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingColumnsError{Missing: missing, Seen: headers}
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rowNum := i + 1 // 1-based over data rows
		if isEmptyRow(row) {
			continue
		}

		rec := Record{
			Name:     cell(row, idx["Equipment Name"]),
			Category: cell(row, idx["Type"]),
		}

		var perr error
		if rec.FlowRate, perr = parseNumeric(row, idx, "Flowrate", rowNum); perr != nil {
			return nil, perr
		}
		if rec.Pressure, perr = parseNumeric(row, idx, "Pressure", rowNum); perr != nil {
			return nil, perr
		}
		if rec.Temperature, perr = parseNumeric(row, idx, "Temperature", rowNum); perr != nil {
			return nil, perr
		}

		records = append(records, rec)
	}

	return records, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// normalizeHeaders strips a leading byte-order marker and surrounding
// whitespace from each header token. Excel exports often sneak a BOM into
// the first column name.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		h = strings.TrimPrefix(h, "\ufeff")
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}

// indexHeaders maps each required column to its position, returning the
// names that were not found. Comparison is case-sensitive by contract.
func indexHeaders(headers []string) (map[string]int, []string) {
	idx := make(map[string]int, len(RequiredColumns))
	for pos, h := range headers {
		if _, seen := idx[h]; !seen {
			idx[h] = pos
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	return idx, missing
}

// cell returns the raw cell value. String columns pass through verbatim:
// " Pump " and "Pump" are distinct categories downstream.
func cell(row []string, pos int) string {
	if pos >= len(row) {
		return ""
	}
	return row[pos]
}

// parseNumeric parses the named column of a row as a finite float.
// Padding around the digits is tolerated; a non-numeric value invalidates
// the whole upload, no partial ingestion.
func parseNumeric(row []string, idx map[string]int, column string, rowNum int) (float64, error) {
	raw := cell(row, idx[column])
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Row: rowNum, Column: column, Value: raw}
	}
	return v, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement
// character so the csv reader never chokes on Windows-1252 leftovers.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\ufffd')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}
