package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opscart/vm-reclaim/pkg/analyzer"
	"github.com/opscart/vm-reclaim/pkg/models"
	"gopkg.in/yaml.v3"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatYAML ReportFormat = "yaml"
	FormatCSV  ReportFormat = "csv"
)

// Report contains all data of one monitoring session
type Report struct {
	SessionID          string            `json:"session_id" yaml:"session_id"`
	GeneratedAt        time.Time         `json:"generated_at" yaml:"generated_at"`
	StartedAt          time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt         time.Time         `json:"finished_at" yaml:"finished_at"`
	Thresholds         models.Thresholds `json:"thresholds" yaml:"thresholds"`
	Entries            []*Entry          `json:"vms" yaml:"vms"`
	VMCount            int               `json:"vm_count" yaml:"vm_count"`
	UnderutilizedCount int               `json:"underutilized_count" yaml:"underutilized_count"`
}

// Entry is one VM of the report
type Entry struct {
	Reclamation *models.Reclamation    `json:"result" yaml:"result"`
	Stats       []analyzer.SeriesStats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// Session is the part of a monitoring session a report is built from
type Session interface {
	Reclamations() []*models.Reclamation
	VMs() []*analyzer.VM
	Thresholds() models.Thresholds
}

// Reporter generates classification reports
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

// Format returns the output format of the reporter
func (r *Reporter) Format() ReportFormat {
	return r.format
}

// Generate builds a report from the session's current classification
func (r *Reporter) Generate(sessionID string, s Session, startedAt, finishedAt time.Time) *Report {
	report := &Report{
		SessionID:   sessionID,
		GeneratedAt: time.Now(),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Thresholds:  s.Thresholds(),
	}

	stats := make(map[int][]analyzer.SeriesStats)
	for _, vm := range s.VMs() {
		stats[vm.PID] = []analyzer.SeriesStats{
			vm.Stats(models.MetricCPU),
			vm.Stats(models.MetricMem),
			vm.Stats(models.MetricDisk),
		}
	}

	for _, rec := range s.Reclamations() {
		report.Entries = append(report.Entries, &Entry{
			Reclamation: rec,
			Stats:       stats[rec.Worker.PID],
		})
	}

	r.calculateStats(report)
	return report
}

// FromReclamations builds a report from stored results, without per-series statistics
func (r *Reporter) FromReclamations(recs []*models.Reclamation) *Report {
	report := &Report{GeneratedAt: time.Now()}
	for _, rec := range recs {
		if report.SessionID == "" {
			report.SessionID = rec.SessionID
			report.Thresholds = rec.Thresholds
		}
		report.Entries = append(report.Entries, &Entry{Reclamation: rec})
	}

	r.calculateStats(report)
	return report
}

func (r *Reporter) calculateStats(report *Report) {
	report.VMCount = len(report.Entries)
	report.UnderutilizedCount = 0
	for _, e := range report.Entries {
		if e.Reclamation.Underutilized {
			report.UnderutilizedCount++
		}
	}
}

// Write renders the report in the reporter's format
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatText, "":
		return GenerateText(report, w)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		return nil
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		return encoder.Close()
	case FormatCSV:
		return GenerateCSV(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", r.format)
	}
}
