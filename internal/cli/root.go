// Package cli implements the riemann command-line interface using Cobra.
// `run` is the coordinator, `worker` is the worker, `history` reads the
// optional run history.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/daemon"
	"github.com/tutu-network/riemann/internal/logging"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $RIEMANN_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

var rootCmd = &cobra.Command{
	Use:   "riemann",
	Short: "riemann — distributed numeric integration on a LAN",
	Long: `riemann splits a definite integral into fixed-width chunks and farms them
out to worker processes found by UDP broadcast.

Start 'riemann worker' on every machine, then 'riemann run START END STEP'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies persistent flag overrides.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg daemon.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return log, nil
}
