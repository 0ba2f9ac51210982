// Package daemon manages riemann configuration and wires the coordinator and
// worker processes.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/riemann/internal/logging"
)

// Config holds all configuration. Every field has a working default.
type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Worker      WorkerConfig      `toml:"worker"`
	Discovery   DiscoveryConfig   `toml:"discovery"`
	Network     NetworkConfig     `toml:"network"`
	Logging     logging.Config    `toml:"logging"`
	History     HistoryConfig     `toml:"history"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// CoordinatorConfig controls partitioning and the round loop.
type CoordinatorConfig struct {
	ChunkWidth           float64 `toml:"chunk_width"`
	MaxDiscoveryAttempts int     `toml:"max_discovery_attempts"` // 0 = unlimited
}

// WorkerConfig controls the task executor.
type WorkerConfig struct {
	Kernel        string `toml:"kernel"`
	MaxConcurrent int    `toml:"max_concurrent"` // 1 = one connection at a time
	ReadTimeout   string `toml:"read_timeout"`
}

// DiscoveryConfig controls the UDP probe exchange.
type DiscoveryConfig struct {
	Port      int    `toml:"port"`
	TaskPort  int    `toml:"task_port"`
	Broadcast string `toml:"broadcast"`
	Window    string `toml:"window"`
}

// NetworkConfig controls the coordinator's task exchanges.
type NetworkConfig struct {
	Timeout string `toml:"timeout"`
}

// HistoryConfig controls the optional run history store.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"` // empty = $RIEMANN_HOME
}

// TelemetryConfig controls the worker status API.
type TelemetryConfig struct {
	Listen string `toml:"listen"` // empty = disabled
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			ChunkWidth: 10,
		},
		Worker: WorkerConfig{
			Kernel:        "square",
			MaxConcurrent: 1,
			ReadTimeout:   "2s",
		},
		Discovery: DiscoveryConfig{
			Port:      8001,
			TaskPort:  8002,
			Broadcast: "255.255.255.255",
			Window:    "2s",
		},
		Network: NetworkConfig{
			Timeout: "2s",
		},
		Logging: logging.Config{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxFiles:   5,
			MaxAgeDays: 30,
		},
	}
}

// LoadConfig reads config from path, or from $RIEMANN_HOME/config.toml when
// path is empty, falling back to defaults when the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		return cfg, nil // No config file yet; use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ConfigPath returns where LoadConfig looks when no path is given.
func ConfigPath() string {
	return filepath.Join(riemannHome(), "config.toml")
}

// SaveConfig writes the config to $RIEMANN_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// HistoryDir returns where the run history database lives.
func (c Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	return riemannHome()
}

// riemannHome returns the riemann data directory.
func riemannHome() string {
	if env := os.Getenv("RIEMANN_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".riemann")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
