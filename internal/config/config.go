// Package config holds the wayfinder configuration file handling.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/wayfinder/internal/scheduler"
)

// Config holds wayfinder configuration.
type Config struct {
	// ListenAddr is the daemon's HTTP address.
	ListenAddr string `yaml:"listen_addr"`
	// DataDir is where the route store, markers, and work files live.
	DataDir string `yaml:"data_dir"`
	// ProjectID is the task-board project tickets are filed under.
	ProjectID string `yaml:"project_id"`
	// BoardURL is the task-board base URL; empty selects the in-memory
	// board (dry-run mode).
	BoardURL string `yaml:"board_url"`
	// BoardToken is the bearer token for the task board.
	BoardToken string `yaml:"board_token"`
	// LeaseTTL is how long a route claim lasts before expiry reclaims it.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
	// RateInterval is the minimum spacing between task-board calls.
	RateInterval time.Duration `yaml:"rate_interval"`
	// MaxRetries bounds retries of rate-limited board calls.
	MaxRetries uint64 `yaml:"max_retries"`
	// Explorer selects the exploration backend: script or none.
	Explorer string `yaml:"explorer"`
	// ExplorerInterpreter runs the exploration script (sh, bash, python3, node).
	ExplorerInterpreter string `yaml:"explorer_interpreter"`
	// ExplorerScript is the path to the exploration script.
	ExplorerScript string `yaml:"explorer_script"`
	// Scheduler configures the exploration worker pool.
	Scheduler *scheduler.Config `yaml:"scheduler"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		ListenAddr:          "127.0.0.1:7478",
		DataDir:             filepath.Join(home, ".wayfinder"),
		ProjectID:           "default",
		LeaseTTL:            15 * time.Minute,
		RateInterval:        2 * time.Second,
		MaxRetries:          5,
		Explorer:            "none",
		ExplorerInterpreter: "sh",
		Scheduler:           scheduler.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.wayfinder/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	path := filepath.Join(home, ".wayfinder", "config.yaml")
	return LoadConfig(path)
}

// SaveConfig saves configuration to a YAML file, creating parent directories
// if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SaveConfigToHome saves configuration to ~/.wayfinder/config.yaml.
func SaveConfigToHome(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home dir: %w", err)
	}
	path := filepath.Join(home, ".wayfinder", "config.yaml")
	return SaveConfig(path, cfg)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("lease_ttl must be positive")
	}
	if c.RateInterval <= 0 {
		return fmt.Errorf("rate_interval must be positive")
	}

	validExplorers := map[string]bool{
		"script": true,
		"none":   true,
	}
	if !validExplorers[c.Explorer] {
		return fmt.Errorf("invalid explorer %q, must be: script or none", c.Explorer)
	}
	if c.Explorer == "script" && c.ExplorerScript == "" {
		return fmt.Errorf("explorer_script required when explorer is script")
	}

	return nil
}

// DBPath returns the route store location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "routes.db")
}

// MarkerDir returns the dedup marker root under the data dir.
func (c *Config) MarkerDir() string {
	return filepath.Join(c.DataDir, "markers")
}

// WorkDir returns the derived scratch space under the data dir. Unlike the
// store and markers it is safe to delete between runs.
func (c *Config) WorkDir() string {
	return filepath.Join(c.DataDir, "work")
}
