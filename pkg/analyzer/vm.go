package analyzer

import (
	"fmt"

	"github.com/opscart/vm-reclaim/pkg/models"
)

// VM accumulates the usage samples of one monitored worker and decides
// whether it is underutilized.
//
// Averages are computed once, on first use, and stay frozen afterwards
// even if more samples are recorded.
type VM struct {
	PID  int
	Name string

	CPUSamples  []float64 // percentage
	MemSamples  []float64 // percentage
	DiskSamples []float64 // Kbps, read + write

	AvgCPU  float64
	AvgMem  float64
	AvgDisk float64

	Underutilized bool

	aggregated bool
}

// NewVM creates an empty record for a worker
func NewVM(pid int, name string) *VM {
	return &VM{
		PID:  pid,
		Name: name,
	}
}

// RecordSample appends value to the series for kind. Values are not
// range checked; tool output is trusted as-is.
func (v *VM) RecordSample(kind models.MetricKind, value float64) {
	switch kind {
	case models.MetricCPU:
		v.CPUSamples = append(v.CPUSamples, value)
	case models.MetricMem:
		v.MemSamples = append(v.MemSamples, value)
	case models.MetricDisk:
		v.DiskSamples = append(v.DiskSamples, value)
	}
}

// AddCPU records a CPU percentage sample
func (v *VM) AddCPU(value float64) { v.RecordSample(models.MetricCPU, value) }

// AddMem records a memory percentage sample
func (v *VM) AddMem(value float64) { v.RecordSample(models.MetricMem, value) }

// AddDisk records a disk rate sample
func (v *VM) AddDisk(value float64) { v.RecordSample(models.MetricDisk, value) }

// ComputeAggregates averages each series the first time it is called.
// An empty series averages to 0. Later calls do nothing.
func (v *VM) ComputeAggregates() {
	if v.aggregated {
		return
	}

	v.AvgCPU = mean(v.CPUSamples)
	v.AvgMem = mean(v.MemSamples)
	v.AvgDisk = mean(v.DiskSamples)
	v.aggregated = true
}

// Aggregated reports whether the averages have been frozen
func (v *VM) Aggregated() bool {
	return v.aggregated
}

// Classify flags the VM when ANY average falls below its threshold.
// A VM busy on two metrics but idle on the third is still flagged.
func (v *VM) Classify(th models.Thresholds) bool {
	v.ComputeAggregates()

	v.Underutilized = v.AvgCPU < th.CPU ||
		v.AvgMem < th.Mem ||
		v.AvgDisk < th.Disk

	return v.Underutilized
}

// ReportLine summarizes the averages and the last classification
func (v *VM) ReportLine() string {
	v.ComputeAggregates()

	return fmt.Sprintf("%s(%d) average usage cpu: %.2f%% mem: %.2f%% io: %.2fKbps is underutilized: %t",
		v.Name, v.PID, v.AvgCPU, v.AvgMem, v.AvgDisk, v.Underutilized)
}

// SampleCount returns the longest series length. The series can differ
// when one tool missed a PID for a tick.
func (v *VM) SampleCount() int {
	n := len(v.CPUSamples)
	if len(v.MemSamples) > n {
		n = len(v.MemSamples)
	}
	if len(v.DiskSamples) > n {
		n = len(v.DiskSamples)
	}
	return n
}

// Samples returns the series for kind
func (v *VM) Samples(kind models.MetricKind) []float64 {
	switch kind {
	case models.MetricCPU:
		return v.CPUSamples
	case models.MetricMem:
		return v.MemSamples
	case models.MetricDisk:
		return v.DiskSamples
	}
	return nil
}

// Stats computes percentiles and the usage pattern for one series
func (v *VM) Stats(kind models.MetricKind) SeriesStats {
	samples := v.Samples(kind)

	stats := SeriesStats{
		Kind:        kind,
		SampleCount: len(samples),
		Pattern:     PatternOf(samples),
	}

	if p, err := Summarize(samples); err == nil {
		stats.Percentiles = p
	}

	return stats
}
