package analyzer

import (
	"testing"

	"github.com/opscart/vm-reclaim/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestComputeAggregatesEmpty(t *testing.T) {
	vm := NewVM(42, "sleep-bound")

	vm.ComputeAggregates()

	assert.True(t, vm.Aggregated())
	assert.Equal(t, 0.0, vm.AvgCPU)
	assert.Equal(t, 0.0, vm.AvgMem)
	assert.Equal(t, 0.0, vm.AvgDisk)
}

func TestComputeAggregatesMean(t *testing.T) {
	vm := NewVM(42, "busy")
	vm.AddCPU(10)
	vm.AddCPU(30)
	vm.AddMem(4)
	vm.AddDisk(100)
	vm.AddDisk(200)
	vm.AddDisk(300)

	vm.ComputeAggregates()

	assert.Equal(t, 20.0, vm.AvgCPU)
	assert.Equal(t, 4.0, vm.AvgMem)
	assert.Equal(t, 200.0, vm.AvgDisk)
}

func TestComputeAggregatesFrozen(t *testing.T) {
	vm := NewVM(42, "busy")
	vm.AddCPU(10)
	vm.ComputeAggregates()

	vm.AddCPU(90)
	vm.AddMem(90)
	vm.ComputeAggregates()

	assert.Equal(t, 10.0, vm.AvgCPU)
	assert.Equal(t, 0.0, vm.AvgMem)
	assert.Len(t, vm.CPUSamples, 2)
}

func TestRecordSampleAcceptsAnything(t *testing.T) {
	vm := NewVM(1, "odd")
	vm.RecordSample(models.MetricCPU, -5)
	vm.RecordSample(models.MetricMem, 1e9)
	vm.RecordSample(models.MetricKind("gpu"), 3)

	assert.Equal(t, []float64{-5}, vm.CPUSamples)
	assert.Equal(t, []float64{1e9}, vm.MemSamples)
	assert.Empty(t, vm.DiskSamples)
}

func TestClassify(t *testing.T) {
	th := models.Thresholds{CPU: 10, Mem: 10, Disk: 10}

	tests := []struct {
		name     string
		cpu      float64
		mem      float64
		disk     float64
		expected bool
	}{
		{name: "all busy", cpu: 50, mem: 50, disk: 50, expected: false},
		{name: "disk idle only", cpu: 50, mem: 50, disk: 5, expected: true},
		{name: "cpu idle only", cpu: 5, mem: 50, disk: 50, expected: true},
		{name: "mem idle only", cpu: 50, mem: 5, disk: 50, expected: true},
		{name: "all idle", cpu: 1, mem: 1, disk: 1, expected: true},
		{name: "exactly at threshold", cpu: 10, mem: 10, disk: 10, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := NewVM(7, "vm")
			vm.AddCPU(tt.cpu)
			vm.AddMem(tt.mem)
			vm.AddDisk(tt.disk)

			assert.Equal(t, tt.expected, vm.Classify(th))
			assert.Equal(t, tt.expected, vm.Underutilized)
		})
	}
}

func TestClassifyNoSamples(t *testing.T) {
	vm := NewVM(7, "vm")
	assert.True(t, vm.Classify(models.Thresholds{CPU: 1, Mem: 1, Disk: 1}))
}

func TestClassifyRerunUsesFrozenAverages(t *testing.T) {
	vm := NewVM(7, "vm")
	vm.AddCPU(5)
	vm.AddMem(50)
	vm.AddDisk(500)
	th := models.Thresholds{CPU: 10, Mem: 10, Disk: 100}

	assert.True(t, vm.Classify(th))

	// More samples do not move the averages
	vm.AddCPU(95)
	assert.True(t, vm.Classify(th))

	// New thresholds are honoured
	assert.False(t, vm.Classify(models.Thresholds{CPU: 1, Mem: 10, Disk: 100}))
}

func TestReportLine(t *testing.T) {
	vm := NewVM(1234, "sleep-bound")
	vm.AddCPU(1.234)
	vm.AddMem(0.5)
	vm.AddDisk(0)
	vm.Classify(models.Thresholds{CPU: 10, Mem: 10, Disk: 100})

	assert.Equal(t,
		"sleep-bound(1234) average usage cpu: 1.23% mem: 0.50% io: 0.00Kbps is underutilized: true",
		vm.ReportLine())
}

func TestReportLineComputesAggregates(t *testing.T) {
	vm := NewVM(1, "vm")
	vm.AddCPU(40)

	line := vm.ReportLine()

	assert.True(t, vm.Aggregated())
	assert.Contains(t, line, "cpu: 40.00%")
	assert.Contains(t, line, "is underutilized: false")
}

func TestSampleCountAndStats(t *testing.T) {
	vm := NewVM(1, "vm")
	vm.AddCPU(1)
	vm.AddCPU(3)
	vm.AddDisk(2)

	assert.Equal(t, 2, vm.SampleCount())

	stats := vm.Stats(models.MetricCPU)
	assert.Equal(t, 2, stats.SampleCount)
	if assert.NotNil(t, stats.Percentiles) {
		assert.Equal(t, 3.0, stats.Percentiles.Peak)
	}

	memStats := vm.Stats(models.MetricMem)
	assert.Nil(t, memStats.Percentiles)
	assert.Equal(t, "unknown", memStats.Pattern.Type)
}
