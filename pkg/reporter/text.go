package reporter

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// GenerateText writes a human readable table of the report
func GenerateText(report *Report, writer io.Writer) error {
	fmt.Fprintf(writer, "=== Reclamation Report (session %s) ===\n\n", report.SessionID)
	fmt.Fprintf(writer, "Thresholds: cpu < %.2f%% or mem < %.2f%% or io < %.2fKbps\n\n",
		report.Thresholds.CPU, report.Thresholds.Mem, report.Thresholds.Disk)

	if len(report.Entries) == 0 {
		fmt.Fprintln(writer, "No VMs monitored")
		return nil
	}

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tCPU %\tMEM %\tIO KBPS\tSAMPLES\tCPU PATTERN\tRECLAIM")
	for _, e := range report.Entries {
		rec := e.Reclamation
		pattern := "-"
		if len(e.Stats) > 0 {
			pattern = e.Stats[0].Pattern.Type
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%d\t%s\t%t\n",
			rec.Worker.PID, rec.Worker.Name,
			rec.AvgCPU, rec.AvgMem, rec.AvgDisk,
			rec.SampleCount, pattern, rec.Underutilized)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}

	fmt.Fprintf(writer, "\n%d of %d VMs underutilized\n", report.UnderutilizedCount, report.VMCount)
	return nil
}
