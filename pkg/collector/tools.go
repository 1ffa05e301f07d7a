package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	ToolProcessList = "ps"
	ToolIOAccount   = "iotop"
)

// ToolError reports that an inspection tool could not be started or its
// output could not be read. The monitoring loop recovers from it by
// skipping the tick.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes an external command and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the local host
type ExecRunner struct{}

// Run executes the command. A non-zero exit status with output is not an
// error: ps exits 1 when one of the requested PIDs is gone but still lists
// the rest. A non-zero exit without output, e.g. iotop lacking privileges,
// is returned with the tool's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		if len(bytes.TrimSpace(out)) == 0 {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				return nil, fmt.Errorf("%w: %s", err, stderr)
			}
			return nil, err
		}
	}
	return out, nil
}

// TickOutput is the raw text both tools produced for one tick
type TickOutput struct {
	ProcessList string
	IOAccount   string
}

// Sampler invokes the resource listing and I/O accounting tools for a
// fixed PID set
type Sampler struct {
	runner    Runner
	psPath    string
	iotopPath string
	psArgs    []string
	iotopArgs []string
}

// NewSampler builds the tool command lines for pids
func NewSampler(runner Runner, psPath, iotopPath string, pids []int) *Sampler {
	return &Sampler{
		runner:    runner,
		psPath:    psPath,
		iotopPath: iotopPath,
		psArgs:    ProcessListArgs(pids),
		iotopArgs: IOAccountArgs(pids),
	}
}

// ProcessListArgs returns `ps -o pid,%cpu,%mem -p <pid,...>`
func ProcessListArgs(pids []int) []string {
	ids := make([]string, len(pids))
	for i, pid := range pids {
		ids[i] = strconv.Itoa(pid)
	}
	return []string{"-o", "pid,%cpu,%mem", "-p", strings.Join(ids, ",")}
}

// IOAccountArgs returns `iotop -b -qqq -n 2 -d 1 -k -p <pid> ...`: batch
// mode, no headers, two one-second iterations, rates in K/s
func IOAccountArgs(pids []int) []string {
	args := []string{"-b", "-qqq", "-n", "2", "-d", "1", "-k"}
	for _, pid := range pids {
		args = append(args, "-p", strconv.Itoa(pid))
	}
	return args
}

// Sample runs both tools and waits for both. Once started the tools are
// not cancelled with ctx. Any failure discards the whole tick.
func (s *Sampler) Sample(ctx context.Context) (*TickOutput, error) {
	runCtx := context.WithoutCancel(ctx)

	var out TickOutput
	var g errgroup.Group

	g.Go(func() error {
		b, err := s.runner.Run(runCtx, s.psPath, s.psArgs...)
		if err != nil {
			return &ToolError{Tool: ToolProcessList, Err: err}
		}
		out.ProcessList = string(b)
		return nil
	})

	g.Go(func() error {
		b, err := s.runner.Run(runCtx, s.iotopPath, s.iotopArgs...)
		if err != nil {
			return &ToolError{Tool: ToolIOAccount, Err: err}
		}
		out.IOAccount = string(b)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &out, nil
}
