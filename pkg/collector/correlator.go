package collector

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/opscart/vm-reclaim/pkg/analyzer"
)

// Default token offsets of the read and write rates in an `iotop -b -k` row:
//
//	PID  PRIO USER  DISK-READ  K/s  DISK-WRITE  K/s ...
const (
	DefaultReadColumn  = 3
	DefaultWriteColumn = 5
)

// ProcessRow is one data row of the resource listing (`ps`)
type ProcessRow struct {
	PID        int
	CPUPercent float64
	MemPercent float64
}

// IORow is one data row of the I/O accounting tool (`iotop`)
type IORow struct {
	PID   int
	Read  float64
	Write float64
}

// TickResult counts what one tick contributed
type TickResult struct {
	ProcessRows int // rows routed to a VM from the resource listing
	IORows      int // rows routed to a VM from the I/O accounting
	Skipped     int // malformed rows and rows for unknown PIDs
}

// ParseProcessTable extracts (pid, cpu%, mem%) rows. The first line is
// the column header and is dropped. Blank lines are ignored and
// malformed rows are counted as skipped.
func ParseProcessTable(out string) ([]ProcessRow, int) {
	lines := strings.Split(out, "\n")

	var rows []ProcessRow
	skipped := 0

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			slog.Debug("skipping short process row", "row", line)
			skipped++
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			slog.Debug("skipping process row with bad pid", "row", line, "error", err)
			skipped++
			continue
		}
		cpu, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			slog.Debug("skipping process row with bad cpu", "row", line, "error", err)
			skipped++
			continue
		}
		mem, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			slog.Debug("skipping process row with bad mem", "row", line, "error", err)
			skipped++
			continue
		}

		rows = append(rows, ProcessRow{PID: pid, CPUPercent: cpu, MemPercent: mem})
	}

	return rows, skipped
}

// ParseIOTable extracts (pid, read, write) rows after dropping the first
// skip lines. iotop is run for two iterations and the first one, one
// line per PID, only carries zero rates.
func ParseIOTable(out string, skip, readCol, writeCol int) ([]IORow, int) {
	lines := strings.Split(out, "\n")
	if skip >= len(lines) {
		return nil, 0
	}

	minFields := readCol
	if writeCol > minFields {
		minFields = writeCol
	}
	minFields++

	var rows []IORow
	skipped := 0

	for _, line := range lines[skip:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < minFields {
			slog.Debug("skipping short io row", "row", line)
			skipped++
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			slog.Debug("skipping io row with bad pid", "row", line, "error", err)
			skipped++
			continue
		}
		read, err := strconv.ParseFloat(fields[readCol], 64)
		if err != nil {
			slog.Debug("skipping io row with bad read rate", "row", line, "error", err)
			skipped++
			continue
		}
		write, err := strconv.ParseFloat(fields[writeCol], 64)
		if err != nil {
			slog.Debug("skipping io row with bad write rate", "row", line, "error", err)
			skipped++
			continue
		}

		rows = append(rows, IORow{PID: pid, Read: read, Write: write})
	}

	return rows, skipped
}

// Correlator routes rows of both tools to VM records by the PID each row
// carries. The two outputs are matched independently, so their row
// order never has to agree.
type Correlator struct {
	vms         map[int]*analyzer.VM
	ioSkip      int
	readColumn  int
	writeColumn int
}

// NewCorrelator creates a correlator for vms. ioSkip is the number of
// leading iotop lines to drop, normally the number of VMs.
func NewCorrelator(vms map[int]*analyzer.VM, ioSkip int) *Correlator {
	return &Correlator{
		vms:         vms,
		ioSkip:      ioSkip,
		readColumn:  DefaultReadColumn,
		writeColumn: DefaultWriteColumn,
	}
}

// SetColumns overrides the iotop read and write token offsets
func (c *Correlator) SetColumns(readCol, writeCol int) {
	c.readColumn = readCol
	c.writeColumn = writeCol
}

// Apply parses one tick of tool output and appends the samples. A PID
// reported by only one tool gets only that tool's metrics.
func (c *Correlator) Apply(psOut, ioOut string) TickResult {
	var result TickResult

	procRows, skipped := ParseProcessTable(psOut)
	result.Skipped += skipped

	for _, row := range procRows {
		vm, ok := c.vms[row.PID]
		if !ok {
			slog.Debug("process row for unknown pid", "pid", row.PID)
			result.Skipped++
			continue
		}
		vm.AddCPU(row.CPUPercent)
		vm.AddMem(row.MemPercent)
		result.ProcessRows++
	}

	ioRows, skipped := ParseIOTable(ioOut, c.ioSkip, c.readColumn, c.writeColumn)
	result.Skipped += skipped

	for _, row := range ioRows {
		vm, ok := c.vms[row.PID]
		if !ok {
			slog.Debug("io row for unknown pid", "pid", row.PID)
			result.Skipped++
			continue
		}
		vm.AddDisk(row.Read + row.Write)
		result.IORows++
	}

	return result
}
