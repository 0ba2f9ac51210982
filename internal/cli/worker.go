package cli

import (
	"github.com/spf13/cobra"

	"github.com/tutu-network/riemann/internal/daemon"
)

func init() {
	workerCmd.Flags().StringVar(&workerKernel, "kernel", "", "Integration kernel: square, identity, sin, exp (overrides config)")
	workerCmd.Flags().StringVar(&workerListen, "listen", "", "Serve /health, /api/status and /metrics on this address")
	workerCmd.Flags().IntVar(&workerMaxConcurrent, "max-concurrent", 0, "Tasks computed in parallel (default 1)")
	rootCmd.AddCommand(workerCmd)
}

var (
	workerKernel        string
	workerListen        string
	workerMaxConcurrent int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Answer discovery probes and compute integration tasks",
	Long: `Run a worker: reply to discovery probes on UDP port 8001 and integrate
tasks received on TCP port 8002 until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workerKernel != "" {
		cfg.Worker.Kernel = workerKernel
	}
	if workerListen != "" {
		cfg.Telemetry.Listen = workerListen
	}
	if workerMaxConcurrent > 0 {
		cfg.Worker.MaxConcurrent = workerMaxConcurrent
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	w, err := daemon.NewWorker(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := daemon.SignalContext(cmd.Context())
	defer stop()
	return w.Serve(ctx)
}
