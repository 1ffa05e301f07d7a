package analyzer

import "github.com/opscart/vm-reclaim/pkg/models"

// Percentiles contains statistical percentiles of one sample series
type Percentiles struct {
	Average float64 `json:"average" yaml:"average"`
	P50     float64 `json:"p50" yaml:"p50"`
	P90     float64 `json:"p90" yaml:"p90"`
	P95     float64 `json:"p95" yaml:"p95"`
	P99     float64 `json:"p99" yaml:"p99"`
	Peak    float64 `json:"peak" yaml:"peak"`
	Min     float64 `json:"min" yaml:"min"`
}

// UsagePattern describes usage behavior
type UsagePattern struct {
	Type       string  `json:"type" yaml:"type"`             // "steady", "moderate", "spiky", "highly-variable", "unknown"
	Variation  float64 `json:"variation" yaml:"variation"`   // Coefficient of variation
	Confidence float64 `json:"confidence" yaml:"confidence"` // 0-1
}

// SeriesStats summarizes one metric series of a VM. It is informational
// and never feeds classification.
type SeriesStats struct {
	Kind        models.MetricKind `json:"kind" yaml:"kind"`
	SampleCount int               `json:"sample_count" yaml:"sample_count"`
	Percentiles *Percentiles      `json:"percentiles,omitempty" yaml:"percentiles,omitempty"`
	Pattern     UsagePattern      `json:"pattern" yaml:"pattern"`
}
