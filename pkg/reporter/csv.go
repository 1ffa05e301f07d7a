package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	// Write header
	header := []string{
		"Session",
		"PID",
		"Name",
		"Avg CPU (%)",
		"Avg Memory (%)",
		"Avg IO (Kbps)",
		"Samples",
		"Underutilized",
		"P95 CPU (%)",
		"P95 Memory (%)",
		"P95 IO (Kbps)",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range report.Entries {
		rec := e.Reclamation
		row := []string{
			rec.SessionID,
			strconv.Itoa(rec.Worker.PID),
			rec.Worker.Name,
			fmt.Sprintf("%.2f", rec.AvgCPU),
			fmt.Sprintf("%.2f", rec.AvgMem),
			fmt.Sprintf("%.2f", rec.AvgDisk),
			strconv.Itoa(rec.SampleCount),
			strconv.FormatBool(rec.Underutilized),
		}
		row = append(row, p95Columns(e)...)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	// Write summary rows
	w.Write([]string{}) // Empty row
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Total VMs", strconv.Itoa(report.VMCount)})
	w.Write([]string{"Underutilized VMs", strconv.Itoa(report.UnderutilizedCount)})
	w.Write([]string{"CPU Threshold (%)", fmt.Sprintf("%.2f", report.Thresholds.CPU)})
	w.Write([]string{"Memory Threshold (%)", fmt.Sprintf("%.2f", report.Thresholds.Mem)})
	w.Write([]string{"IO Threshold (Kbps)", fmt.Sprintf("%.2f", report.Thresholds.Disk)})

	w.Flush()
	return w.Error()
}

// p95Columns is empty per column when the series has no samples
// or the entry came from storage
func p95Columns(e *Entry) []string {
	cols := []string{"", "", ""}
	for i, s := range e.Stats {
		if i >= len(cols) {
			break
		}
		if s.Percentiles != nil {
			cols[i] = fmt.Sprintf("%.2f", s.Percentiles.P95)
		}
	}
	return cols
}
