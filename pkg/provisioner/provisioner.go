package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/opscart/vm-reclaim/pkg/models"
)

// Static supplies already running processes as workers
type Static struct {
	pids     []int
	procRoot string
}

// NewStatic attaches to pids. Labels come from /proc/<pid>/comm when readable.
func NewStatic(pids []int) *Static {
	return &Static{pids: pids, procRoot: "/proc"}
}

// Provision returns one worker per PID; count is checked by the caller
func (s *Static) Provision(_ context.Context, _ int) ([]models.Worker, error) {
	workers := make([]models.Worker, 0, len(s.pids))
	for _, pid := range s.pids {
		workers = append(workers, models.Worker{PID: pid, Name: s.processName(pid)})
	}
	return workers, nil
}

func (s *Static) processName(pid int) string {
	b, err := os.ReadFile(filepath.Join(s.procRoot, fmt.Sprint(pid), "comm"))
	if err != nil || strings.TrimSpace(string(b)) == "" {
		return fmt.Sprintf("vm-%d", pid)
	}
	return strings.TrimSpace(string(b))
}

// Exec spawns shell commands as workers and terminates them on request.
// Worker i runs commands[i % len(commands)].
type Exec struct {
	commands []string
	shell    string

	mu    sync.Mutex
	procs []*exec.Cmd
}

// NewExec creates a provisioner for commands run through /bin/sh -c
func NewExec(commands []string) *Exec {
	return &Exec{commands: commands, shell: "/bin/sh"}
}

// Provision starts count workers. If any fails to start the ones already
// running are terminated.
func (e *Exec) Provision(_ context.Context, count int) ([]models.Worker, error) {
	if len(e.commands) == 0 {
		return nil, errors.New("no worker commands configured")
	}

	workers := make([]models.Worker, 0, count)
	for i := 0; i < count; i++ {
		command := e.commands[i%len(e.commands)]

		cmd := exec.Command(e.shell, "-c", command)
		// Own process group, so children of compound commands are
		// terminated with the shell
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			e.Terminate()
			return nil, fmt.Errorf("failed to start worker %q: %w", command, err)
		}

		e.mu.Lock()
		e.procs = append(e.procs, cmd)
		e.mu.Unlock()

		workers = append(workers, models.Worker{PID: cmd.Process.Pid, Name: label(command)})
		slog.Debug("worker started", "pid", cmd.Process.Pid, "command", command)
	}

	return workers, nil
}

// Terminate kills the process group of every spawned worker and reaps the worker
func (e *Exec) Terminate() {
	e.mu.Lock()
	procs := e.procs
	e.procs = nil
	e.mu.Unlock()

	for _, cmd := range procs {
		pid := cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			slog.Warn("failed to kill worker group", "pid", pid, "error", err)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.Warn("failed to kill worker", "pid", pid, "error", err)
			}
		}
		_ = cmd.Wait()
	}
}

// label derives a worker name from the command's program, e.g. "sleep"
func label(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "worker"
	}
	return filepath.Base(fields[0]) + "-bound"
}
