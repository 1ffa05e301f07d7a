package models

import "time"

// Reclamation is the classification result for one VM after a monitoring session
type Reclamation struct {
	ID        string  `json:"id" yaml:"id"`
	SessionID string  `json:"session_id" yaml:"session_id"`
	Worker    *Worker `json:"worker" yaml:"worker"`

	// Averages over the monitoring window
	AvgCPU  float64 `json:"avg_cpu_percent" yaml:"avg_cpu_percent"`
	AvgMem  float64 `json:"avg_mem_percent" yaml:"avg_mem_percent"`
	AvgDisk float64 `json:"avg_disk_kbps" yaml:"avg_disk_kbps"`

	SampleCount   int        `json:"sample_count" yaml:"sample_count"`
	Underutilized bool       `json:"underutilized" yaml:"underutilized"`
	Thresholds    Thresholds `json:"thresholds" yaml:"thresholds"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
