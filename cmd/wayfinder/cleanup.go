package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove derived work files",
	Long: `Removes the work directory. The route store and the dedup markers are the
campaign's durable memory and are never touched: deleting them would re-create
already-dispatched tickets.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default ~/.wayfinder/config.yaml)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	workDir := cfg.WorkDir()
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("removing %s: %w", workDir, err)
	}

	fmt.Printf("Removed %s\n", workDir)
	fmt.Println("Route store and markers kept")
	return nil
}
