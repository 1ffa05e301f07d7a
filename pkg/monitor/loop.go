package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/opscart/vm-reclaim/pkg/collector"
)

// Monitor samples every VM once per tick for the configured number of
// ticks, waiting the tick interval between ticks. A tick whose tools fail
// records nothing and the loop moves on. Cancelling ctx stops the loop at
// the next wait, leaving the samples gathered so far.
func (s *Session) Monitor(ctx context.Context) error {
	if s.state != StateIdle {
		return ErrAlreadyMonitored
	}

	s.StartedAt = time.Now()
	defer func() {
		s.state = StateDone
		s.FinishedAt = time.Now()
	}()

	ticks := s.cfg.Ticks
	if ticks == 0 {
		s.logger.Info("no ticks configured, skipping sampling", "session", s.ID)
		return nil
	}

	s.state = StateSampling

	for tick := 1; tick <= ticks; tick++ {
		s.runTick(ctx, tick)

		if tick == ticks {
			break
		}
		if err := s.sleep(ctx, s.cfg.TickInterval); err != nil {
			s.logger.Warn("monitoring interrupted", "session", s.ID, "completed_ticks", tick, "error", err)
			return err
		}
	}

	s.logger.Info("monitoring finished", "session", s.ID, "ticks", ticks)
	return nil
}

func (s *Session) runTick(ctx context.Context, tick int) {
	start := time.Now()
	s.logger.Debug("tick started", "session", s.ID, "tick", tick)

	out, err := s.sampler.Sample(ctx)
	if err != nil {
		tool := "unknown"
		var toolErr *collector.ToolError
		if errors.As(err, &toolErr) {
			tool = toolErr.Tool
		}
		toolFailuresTotal.WithLabelValues(tool).Inc()
		ticksTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("skipping tick, inspection tool failed", "tick", tick, "tool", tool, "error", err)
		return
	}

	result := s.correlator.Apply(out.ProcessList, out.IOAccount)

	rowsTotal.WithLabelValues(collector.ToolProcessList, "recorded").Add(float64(result.ProcessRows))
	rowsTotal.WithLabelValues(collector.ToolIOAccount, "recorded").Add(float64(result.IORows))
	rowsTotal.WithLabelValues("any", "skipped").Add(float64(result.Skipped))
	ticksTotal.WithLabelValues("ok").Inc()
	tickDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("tick finished",
		"tick", tick,
		"process_rows", result.ProcessRows,
		"io_rows", result.IORows,
		"skipped", result.Skipped,
		"duration", time.Since(start))
}
