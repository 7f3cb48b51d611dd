// Package scheduler runs the exploration worker pool.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent exploration workers.
	GlobalMax int `yaml:"global_max"`
	// ByExplorer defines per-explorer concurrency limits.
	ByExplorer map[string]int `yaml:"by_explorer"`
	// UserLevels lists the identities the pool explores with.
	UserLevels []string `yaml:"user_levels"`
	// PollInterval is how often the pool looks for claimable routes.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 4,
		ByExplorer: map[string]int{
			"script": 2,
		},
		UserLevels:   []string{"admin"},
		PollInterval: time.Second,
	}
}

// GetExplorerLimit returns the concurrency limit for an explorer.
func (c *Config) GetExplorerLimit(name string) int {
	if limit, ok := c.ByExplorer[name]; ok {
		return limit
	}
	// Default limit if not specified
	return 1
}
