package monitor

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/vm-reclaim/pkg/models"
)

// UnderutilizedVMs classifies every VM with the session thresholds and
// appends the flagged PIDs to the session's collection, which it returns.
// The collection is not deduplicated across calls. When printVM is set a
// "Reclaim" line is written to w for each VM flagged by this call.
//
// Called before any sample was collected, every VM is flagged because
// empty series average to 0.
func (s *Session) UnderutilizedVMs(w io.Writer, printVM bool) []int {
	if s.state != StateDone {
		s.logger.Warn("classifying before monitoring finished", "session", s.ID, "state", s.state.String())
	}

	flagged := 0
	for _, pid := range s.order {
		vm := s.vms[pid]
		if !vm.Classify(s.thresholds) {
			continue
		}
		if printVM {
			fmt.Fprintln(w, "Reclaim ", vm.ReportLine())
		}
		s.underutilized = append(s.underutilized, pid)
		flagged++
	}

	s.recordUsage()
	underutilizedVMs.Set(float64(flagged))
	s.logger.Info("classification finished", "session", s.ID, "vms", len(s.order), "underutilized", flagged)

	return append([]int(nil), s.underutilized...)
}

func (s *Session) recordUsage() {
	for _, pid := range s.order {
		vm := s.vms[pid]
		id := strconv.Itoa(pid)
		averageUsage.WithLabelValues(id, vm.Name, string(models.MetricCPU)).Set(vm.AvgCPU)
		averageUsage.WithLabelValues(id, vm.Name, string(models.MetricMem)).Set(vm.AvgMem)
		averageUsage.WithLabelValues(id, vm.Name, string(models.MetricDisk)).Set(vm.AvgDisk)
	}
}

// Reclamations returns one result per VM in registration order with the
// frozen averages and the last classification
func (s *Session) Reclamations() []*models.Reclamation {
	now := time.Now()

	results := make([]*models.Reclamation, 0, len(s.order))
	for _, pid := range s.order {
		vm := s.vms[pid]
		vm.ComputeAggregates()

		results = append(results, &models.Reclamation{
			ID:            uuid.New().String(),
			SessionID:     s.ID,
			Worker:        &models.Worker{PID: pid, Name: vm.Name},
			AvgCPU:        vm.AvgCPU,
			AvgMem:        vm.AvgMem,
			AvgDisk:       vm.AvgDisk,
			SampleCount:   vm.SampleCount(),
			Underutilized: vm.Underutilized,
			Thresholds:    s.thresholds,
			CreatedAt:     now,
		})
	}
	return results
}
