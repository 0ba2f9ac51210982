package daemon

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/riemann/internal/api"
	"github.com/tutu-network/riemann/internal/app/coordinator"
	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/health"
	"github.com/tutu-network/riemann/internal/infra/discovery"
	"github.com/tutu-network/riemann/internal/infra/engine"
	"github.com/tutu-network/riemann/internal/infra/network"
	"github.com/tutu-network/riemann/internal/infra/registry"
	"github.com/tutu-network/riemann/internal/infra/sqlite"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// ─── Coordinator ────────────────────────────────────────────────────────────

// Coordinator is a configured coordinator process.
type Coordinator struct {
	*coordinator.Coordinator
	DB *sqlite.DB // nil unless history is enabled
}

// NewCoordinator wires discovery, task exchange and, if enabled, run history.
func NewCoordinator(cfg Config, log *zap.Logger) (*Coordinator, error) {
	clientCfg, err := discoveryClientConfig(cfg.Discovery)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{}
	var recorder domain.RunRecorder
	if cfg.History.Enabled {
		db, err := sqlite.Open(cfg.HistoryDir())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		c.DB = db
		recorder = db
	}

	factory := func(reg *registry.Registry) domain.Discoverer {
		return discovery.NewClient(clientCfg, reg, log)
	}
	exchanger := network.NewClient(parseDuration(cfg.Network.Timeout, network.DefaultTimeout))

	c.Coordinator = coordinator.New(coordinatorConfig(cfg.Coordinator), factory, exchanger, recorder, log)
	return c, nil
}

// Close releases the history store.
func (c *Coordinator) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func coordinatorConfig(cc CoordinatorConfig) coordinator.Config {
	out := coordinator.DefaultConfig()
	if cc.ChunkWidth > 0 {
		out.ChunkWidth = cc.ChunkWidth
	}
	out.MaxDiscoveryAttempts = cc.MaxDiscoveryAttempts
	return out
}

func discoveryClientConfig(dc DiscoveryConfig) (discovery.ClientConfig, error) {
	port, err := checkPort("discovery.port", dc.Port)
	if err != nil {
		return discovery.ClientConfig{}, err
	}
	taskPort, err := checkPort("discovery.task_port", dc.TaskPort)
	if err != nil {
		return discovery.ClientConfig{}, err
	}
	addr, err := netip.ParseAddr(dc.Broadcast)
	if err != nil || !addr.Is4() {
		return discovery.ClientConfig{}, fmt.Errorf("discovery.broadcast %q: not an IPv4 address", dc.Broadcast)
	}
	out := discovery.DefaultClientConfig()
	out.Broadcast = netip.AddrPortFrom(addr, port)
	out.TaskPort = taskPort
	out.Window = parseDuration(dc.Window, out.Window)
	return out, nil
}

func checkPort(name string, p int) (uint16, error) {
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("%s %d out of range", name, p)
	}
	return uint16(p), nil
}

// ─── Worker ─────────────────────────────────────────────────────────────────

// Worker runs the discovery responder and the task executor side by side,
// plus the optional status API.
type Worker struct {
	Config    Config
	Responder *discovery.Responder
	Executor  *engine.Executor
	Health    *health.Checker
	Server    *api.Server // nil when telemetry.listen is empty

	log       *zap.Logger
	kernel    string
	startedAt time.Time
}

// NewWorker wires a worker from configuration.
func NewWorker(cfg Config, log *zap.Logger) (*Worker, error) {
	kernel, err := domain.LookupKernel(cfg.Worker.Kernel)
	if err != nil {
		return nil, err
	}
	port, err := checkPort("discovery.port", cfg.Discovery.Port)
	if err != nil {
		return nil, err
	}
	taskPort, err := checkPort("discovery.task_port", cfg.Discovery.TaskPort)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		Config: cfg,
		log:    log,
		kernel: cfg.Worker.Kernel,
	}
	w.Responder = discovery.NewResponder(fmt.Sprintf(":%d", port), log)
	w.Executor = engine.New(engine.Config{
		Addr:          fmt.Sprintf(":%d", taskPort),
		ReadTimeout:   parseDuration(cfg.Worker.ReadTimeout, engine.DefaultConfig().ReadTimeout),
		MaxConcurrent: cfg.Worker.MaxConcurrent,
	}, kernel, log)
	w.Health = health.NewChecker(health.DefaultInterval,
		health.Serving("discovery", w.Responder.Serving),
		health.Serving("executor", w.Executor.Serving),
		health.DataDir(riemannHome()),
	)
	if cfg.Telemetry.Listen != "" {
		w.Server = api.NewServer(w.Status, w.Health, log)
	}
	return w, nil
}

// Serve runs every worker loop until ctx is cancelled or one of them fails
// to start. A bind failure on either well-known port stops the worker.
func (w *Worker) Serve(ctx context.Context) error {
	w.startedAt = time.Now()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.Responder.ListenAndServe(ctx) })
	g.Go(func() error { return w.Executor.ListenAndServe(ctx) })
	g.Go(func() error {
		w.Health.Run(ctx)
		return nil
	})
	if w.Server != nil {
		g.Go(func() error { return w.Server.ListenAndServe(ctx, w.Config.Telemetry.Listen) })
	}

	w.log.Info("worker started",
		zap.String("kernel", w.kernel),
		zap.Int("discovery_port", w.Config.Discovery.Port),
		zap.Int("task_port", w.Config.Discovery.TaskPort),
		zap.String("status_api", w.Config.Telemetry.Listen),
	)
	err := g.Wait()
	w.log.Info("worker stopped")
	return err
}

// Status reports the worker's current state for the status API.
func (w *Worker) Status() api.WorkerStatus {
	return api.WorkerStatus{
		Kernel:        w.kernel,
		DiscoveryAddr: fmt.Sprintf(":%d", w.Config.Discovery.Port),
		TaskAddr:      fmt.Sprintf(":%d", w.Config.Discovery.TaskPort),
		Discovery:     w.Responder.Serving(),
		Executor:      w.Executor.Serving(),
		MaxConcurrent: max(1, w.Config.Worker.MaxConcurrent),
		StartedAt:     w.startedAt,
		Uptime:        time.Since(w.startedAt).Round(time.Second).String(),
	}
}
