package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/vm-reclaim/pkg/analyzer"
	"github.com/opscart/vm-reclaim/pkg/collector"
	"github.com/opscart/vm-reclaim/pkg/config"
	"github.com/opscart/vm-reclaim/pkg/models"
)

var (
	// ErrDuplicateIdentity is returned when two workers share a PID
	ErrDuplicateIdentity = errors.New("duplicate worker identity")
	// ErrWorkerCount is returned when the provisioner does not supply exactly the configured number of workers
	ErrWorkerCount = errors.New("unexpected number of workers")
	// ErrAlreadyMonitored is returned by a second call to Monitor
	ErrAlreadyMonitored = errors.New("session already monitored")
)

// Provisioner supplies the identity and label of each worker. The
// session never starts or stops workers itself.
type Provisioner interface {
	Provision(ctx context.Context, count int) ([]models.Worker, error)
}

// State is the monitoring loop state
type State int

const (
	StateIdle State = iota
	StateSampling
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Sleeper waits between ticks. It returns early with ctx.Err() when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Session
type Option func(*Session)

// WithRunner replaces the local command runner used for ps and iotop
func WithRunner(r collector.Runner) Option {
	return func(s *Session) { s.runner = r }
}

// WithSleeper replaces the inter-tick wait
func WithSleeper(fn Sleeper) Option {
	return func(s *Session) { s.sleep = fn }
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session monitors a fixed set of VMs over a number of ticks and
// classifies them afterwards
type Session struct {
	ID string

	cfg        *config.Config
	thresholds models.Thresholds

	vms   map[int]*analyzer.VM
	order []int

	runner     collector.Runner
	sampler    *collector.Sampler
	correlator *collector.Correlator
	sleep      Sleeper
	logger     *slog.Logger

	state         State
	underutilized []int

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewSession validates cfg and registers the workers supplied by prov.
// It fails before any monitoring when the configuration is invalid.
func NewSession(ctx context.Context, cfg *config.Config, prov Provisioner, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.New().String(),
		cfg:        cfg,
		thresholds: cfg.Thresholds(),
		vms:        make(map[int]*analyzer.VM, cfg.VMCount),
		runner:     collector.ExecRunner{},
		sleep:      sleepContext,
		logger:     slog.Default(),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	workers, err := prov.Provision(ctx, cfg.VMCount)
	if err != nil {
		return nil, fmt.Errorf("failed to provision workers: %w", err)
	}
	if len(workers) != cfg.VMCount {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrWorkerCount, cfg.VMCount, len(workers))
	}

	for _, w := range workers {
		if _, exists := s.vms[w.PID]; exists {
			return nil, fmt.Errorf("%w: pid %d", ErrDuplicateIdentity, w.PID)
		}
		s.vms[w.PID] = analyzer.NewVM(w.PID, w.Name)
		s.order = append(s.order, w.PID)
	}

	s.sampler = collector.NewSampler(s.runner, cfg.PSPath, cfg.IotopPath, s.order)
	s.correlator = collector.NewCorrelator(s.vms, len(s.order))
	s.correlator.SetColumns(cfg.IOReadColumn, cfg.IOWriteColumn)

	s.logger.Info("session created",
		"session", s.ID, "vms", len(s.order), "ticks", cfg.Ticks, "interval", cfg.TickInterval)

	return s, nil
}

// State returns the current loop state
func (s *Session) State() State {
	return s.state
}

// Thresholds returns the classification limits of the session
func (s *Session) Thresholds() models.Thresholds {
	return s.thresholds
}

// Config returns the validated session configuration
func (s *Session) Config() *config.Config {
	return s.cfg
}

// VM returns the record for pid, or nil
func (s *Session) VM(pid int) *analyzer.VM {
	return s.vms[pid]
}

// VMs returns all records in registration order
func (s *Session) VMs() []*analyzer.VM {
	vms := make([]*analyzer.VM, 0, len(s.order))
	for _, pid := range s.order {
		vms = append(vms, s.vms[pid])
	}
	return vms
}

// Workers returns the registered workers in registration order
func (s *Session) Workers() []models.Worker {
	workers := make([]models.Worker, 0, len(s.order))
	for _, pid := range s.order {
		workers = append(workers, models.Worker{PID: pid, Name: s.vms[pid].Name})
	}
	return workers
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
