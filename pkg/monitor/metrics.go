package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmreclaim_ticks_total",
			Help: "Monitoring ticks by outcome",
		},
		[]string{"status"}, // ok or failed
	)

	toolFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmreclaim_tool_failures_total",
			Help: "Inspection tool invocations that could not be run or read",
		},
		[]string{"tool"}, // ps, iotop
	)

	rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmreclaim_rows_total",
			Help: "Tool output rows by source and outcome",
		},
		[]string{"source", "status"}, // source: ps, iotop, any; status: recorded, skipped
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vmreclaim_tick_duration_seconds",
			Help:    "Time taken to sample and correlate one tick",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	underutilizedVMs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmreclaim_underutilized_vms",
			Help: "VMs flagged by the last classification",
		},
	)

	averageUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmreclaim_vm_average_usage",
			Help: "Average usage of each VM over the monitoring window",
		},
		[]string{"pid", "name", "metric"}, // metric: cpu, mem, disk
	)
)
