package pipeline

import "fmt"

// Summarize computes the aggregate statistics for one upload. Averages are
// arithmetic means, or 0.0 for an empty row set (never a division by
// zero). Category counting is exact match, case- and whitespace-sensitive.
// Pure and deterministic for a given input sequence.
func Summarize(records []Record) Summary {
	s := Summary{
		RecordCount:          len(records),
		CategoryDistribution: make(map[string]int, 8),
	}
	if len(records) == 0 {
		return s
	}

	var flow, pressure, temp float64
	for _, r := range records {
		flow += r.FlowRate
		pressure += r.Pressure
		temp += r.Temperature
		s.CategoryDistribution[r.Category]++
	}

	n := float64(len(records))
	s.AvgFlowRate = flow / n
	s.AvgPressure = pressure / n
	s.AvgTemperature = temp / n
	return s
}

// SummaryText renders the short human-readable digest stored in the
// history ledger.
func SummaryText(s Summary) string {
	return fmt.Sprintf("Total: %d, Avg Flowrate: %.2f, Avg Pressure: %.2f, Avg Temperature: %.2f",
		s.RecordCount, s.AvgFlowRate, s.AvgPressure, s.AvgTemperature)
}
