package models

// Worker is a monitored process standing in for a VM
type Worker struct {
	PID  int    `json:"pid" yaml:"pid"`
	Name string `json:"name" yaml:"name"`
}

// MetricKind identifies one of the sampled resources
type MetricKind string

const (
	MetricCPU  MetricKind = "cpu"
	MetricMem  MetricKind = "mem"
	MetricDisk MetricKind = "disk"
)

// Thresholds are the utilization limits below which a VM is flagged
type Thresholds struct {
	CPU  float64 `json:"cpu" yaml:"cpu"`   // percentage
	Mem  float64 `json:"mem" yaml:"mem"`   // percentage
	Disk float64 `json:"disk" yaml:"disk"` // Kbps, read + write
}
