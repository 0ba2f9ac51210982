package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/registry"
)

// Config configures a coordinator.
type Config struct {
	ChunkWidth           float64
	MaxDiscoveryAttempts int
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{ChunkWidth: ChunkWidth}
}

// DiscovererFactory builds a discoverer that fills the given registry.
type DiscovererFactory func(reg *registry.Registry) domain.Discoverer

// Coordinator owns the lifecycle of one or more integration runs. Each run
// starts with an empty registry; peers never outlive the run.
type Coordinator struct {
	config    Config
	discover  DiscovererFactory
	exchanger domain.Exchanger
	recorder  domain.RunRecorder
	log       *zap.Logger
}

// New creates a coordinator. recorder may be nil.
func New(cfg Config, discover DiscovererFactory, ex domain.Exchanger, recorder domain.RunRecorder, log *zap.Logger) *Coordinator {
	return &Coordinator{
		config:    cfg,
		discover:  discover,
		exchanger: ex,
		recorder:  recorder,
		log:       log,
	}
}

// Run integrates over [start, end) with the given step and returns the
// aggregate. Invalid input is rejected before any network activity.
func (c *Coordinator) Run(ctx context.Context, start, end, step float64) (Summary, error) {
	if err := (domain.Task{Start: start, End: end, Step: step}).Validate(); err != nil {
		return Summary{}, err
	}

	if n := ChunkCount(start, end, c.config.ChunkWidth); n > MaxTasks {
		return Summary{}, fmt.Errorf("%w: %g chunks, limit %d", domain.ErrTooManyTasks, n, MaxTasks)
	}

	tasks := Partition(start, end, step, c.config.ChunkWidth)
	run := domain.Run{
		ID:        uuid.NewString(),
		Start:     start,
		End:       end,
		Step:      step,
		Status:    domain.RunRunning,
		Tasks:     len(tasks),
		StartedAt: time.Now(),
	}
	log := c.log.With(zap.String("run", run.ID))
	log.Info("run started",
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.Float64("step", step),
		zap.Int("tasks", len(tasks)),
	)
	if c.recorder != nil {
		if err := c.recorder.BeginRun(run); err != nil {
			log.Warn("record run start", zap.Error(err))
		}
	}

	reg := registry.New()
	d := NewDispatcher(DispatcherConfig{
		RunID:                run.ID,
		MaxDiscoveryAttempts: c.config.MaxDiscoveryAttempts,
	}, reg, c.discover(reg), c.exchanger, c.recorder, log)

	summary, err := d.Distribute(ctx, tasks)

	run.Total = summary.Total
	run.Dispatched = summary.Dispatched
	run.Failed = summary.Failed
	run.Rounds = summary.Rounds
	run.CompletedAt = time.Now()
	run.Status = domain.RunCompleted
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		log.Error("run failed", zap.Error(err))
	} else {
		log.Info("run completed",
			zap.Float64("total", summary.Total),
			zap.Int("failed", summary.Failed),
			zap.Int("rounds", summary.Rounds),
			zap.Duration("elapsed", run.CompletedAt.Sub(run.StartedAt)),
		)
	}
	if c.recorder != nil {
		if rerr := c.recorder.FinishRun(run); rerr != nil {
			log.Warn("record run finish", zap.Error(rerr))
		}
	}

	return summary, err
}
