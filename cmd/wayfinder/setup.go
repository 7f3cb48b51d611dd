package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/wayfinder/internal/config"
	"github.com/example/wayfinder/internal/store"
)

var (
	setupUserLevels []string
	setupProjectID  string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the campaign workspace",
	Long: `Creates the data directory, runs the store schema migration, and records
the campaign's user levels in the configuration.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default ~/.wayfinder/config.yaml)")
	setupCmd.Flags().StringSliceVar(&setupUserLevels, "user-level", nil, "User level to explore with (repeatable)")
	setupCmd.Flags().StringVar(&setupProjectID, "project", "", "Task-board project id")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	if len(setupUserLevels) > 0 {
		cfg.Scheduler.UserLevels = setupUserLevels
	}
	if setupProjectID != "" {
		cfg.ProjectID = setupProjectID
	}

	for _, dir := range []string{cfg.DataDir, cfg.MarkerDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	// Opening the store runs the schema migration.
	s, err := store.New(cfg.DBPath())
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		if err := config.SaveConfigToHome(cfg); err != nil {
			return err
		}
	} else {
		if err := config.SaveConfig(path, cfg); err != nil {
			return err
		}
	}

	fmt.Printf("Workspace ready under %s\n", cfg.DataDir)
	fmt.Printf("User levels: %v\n", cfg.Scheduler.UserLevels)
	return nil
}
