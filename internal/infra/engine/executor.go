// Package engine is the worker side of the task exchange.
//
// The Executor accepts one TCP connection per task, reads one Task record,
// integrates the kernel over the sub-interval and writes back one result
// record. By default a connection is fully handled before the next one is
// accepted; MaxConcurrent > 1 hands connections to a bounded goroutine pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
	"github.com/tutu-network/riemann/internal/infra/wire"
)

// Config configures the task executor.
type Config struct {
	Addr          string        // listen address, e.g. ":8002"
	ReadTimeout   time.Duration // time allowed for a full Task record to arrive
	MaxConcurrent int           // 1 = one connection at a time
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8002",
		ReadTimeout:   2 * time.Second,
		MaxConcurrent: 1,
	}
}

// Executor serves task requests with a fixed integration kernel.
type Executor struct {
	config  Config
	kernel  domain.Kernel
	log     *zap.Logger
	serving atomic.Bool
}

// New creates an executor. A nil kernel means domain.Square.
func New(cfg Config, kernel domain.Kernel, log *zap.Logger) *Executor {
	if kernel == nil {
		kernel = domain.Square
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Executor{config: cfg, kernel: kernel, log: log.Named("engine")}
}

// ListenAndServe binds the task port and serves until ctx is cancelled.
// A bind failure is returned immediately.
func (e *Executor) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return fmt.Errorf("%w: bind tasks %s: %w", domain.ErrSocketSetup, e.config.Addr, err)
	}
	return e.Serve(ctx, ln)
}

// Serve accepts task connections on ln until ctx is cancelled. It takes
// ownership of ln. Cancellation is not an error.
func (e *Executor) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var pool *ants.Pool
	if e.config.MaxConcurrent > 1 {
		p, err := ants.NewPool(e.config.MaxConcurrent)
		if err != nil {
			return fmt.Errorf("create executor pool: %w", err)
		}
		pool = p
		defer pool.ReleaseTimeout(e.config.ReadTimeout)
	}

	e.serving.Store(true)
	defer e.serving.Store(false)
	e.log.Info("serving tasks",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("max_concurrent", e.config.MaxConcurrent),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			e.log.Warn("accept", zap.Error(err))
			continue
		}

		if pool == nil {
			e.handle(conn)
			continue
		}
		if err := pool.Submit(func() { e.handle(conn) }); err != nil {
			metrics.TasksDropped.WithLabelValues("pool").Inc()
			e.log.Warn("pool rejected task connection", zap.Error(err))
			conn.Close()
		}
	}
}

// Serving reports whether the accept loop is running.
func (e *Executor) Serving() bool {
	return e.serving.Load()
}

// handle runs one exchange. Incomplete or invalid records are dropped
// without a response.
func (e *Executor) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if err := conn.SetReadDeadline(time.Now().Add(e.config.ReadTimeout)); err != nil {
		return
	}
	task, err := wire.ReadTask(conn)
	if err != nil {
		metrics.TasksDropped.WithLabelValues("partial").Inc()
		e.log.Debug("dropping partial task", zap.String("from", remote), zap.Error(err))
		return
	}
	if err := task.Validate(); err != nil {
		metrics.TasksDropped.WithLabelValues("invalid").Inc()
		e.log.Warn("dropping invalid task", zap.String("from", remote), zap.Error(err))
		return
	}

	started := time.Now()
	result := Integrate(e.kernel, task)
	metrics.ComputeLatency.Observe(time.Since(started).Seconds())

	if err := conn.SetWriteDeadline(time.Now().Add(e.config.ReadTimeout)); err != nil {
		return
	}
	if err := wire.WriteResult(conn, result); err != nil {
		e.log.Warn("write result", zap.String("to", remote), zap.Error(err))
		return
	}
	metrics.TasksServed.Inc()
	e.log.Debug("task served",
		zap.String("from", remote),
		zap.Stringer("task", task),
		zap.Float64("result", result),
	)
}

// Integrate computes the left Riemann sum of f over [t.Start, t.End) with
// sample spacing t.Step. The caller must pass a validated task.
func Integrate(f domain.Kernel, t domain.Task) float64 {
	sum := 0.0
	for x := t.Start; x < t.End; {
		sum += f(x) * t.Step
		next := x + t.Step
		if next == x { // step below float64 resolution at x
			break
		}
		x = next
	}
	return sum
}
