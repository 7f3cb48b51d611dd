package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/wayfinder/internal/audit"
	"github.com/example/wayfinder/internal/campaign"
	"github.com/example/wayfinder/internal/config"
	"github.com/example/wayfinder/internal/dispatch"
	"github.com/example/wayfinder/internal/explorer/script"
	"github.com/example/wayfinder/internal/lease"
	"github.com/example/wayfinder/internal/marker"
	"github.com/example/wayfinder/internal/ratelimit"
	"github.com/example/wayfinder/internal/scheduler"
	"github.com/example/wayfinder/internal/store"
	"github.com/example/wayfinder/internal/taskboard"
)

var (
	configPath string
	listenAddr string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the wayfinder daemon",
	Long:  `Starts the wayfinder daemon which provides the coordination HTTP API and the exploration worker pool.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default ~/.wayfinder/config.yaml)")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
}

func loadDaemonConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.LoadConfigFromHome()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting wayfinder daemon...")

	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	// Initialize store and markers
	s, err := store.New(cfg.DBPath())
	if err != nil {
		return err
	}
	markers, err := marker.New(cfg.MarkerDir())
	if err != nil {
		s.Close()
		return err
	}

	// Task board: real HTTP board when configured, in-memory otherwise.
	var board taskboard.Board
	if cfg.BoardURL != "" {
		board = taskboard.NewHTTPBoard(cfg.BoardURL, cfg.BoardToken)
	} else {
		log.Println("No board_url configured, using in-memory task board (dry run)")
		board = taskboard.NewMemoryBoard()
	}
	limiter := ratelimit.New(board, ratelimit.Config{
		Interval:   cfg.RateInterval,
		BaseDelay:  time.Second,
		StepDelay:  time.Second,
		MaxRetries: cfg.MaxRetries,
	})

	// Wire the service
	leases := lease.NewManager(s, cfg.LeaseTTL)
	dispatcher := dispatch.New(s, markers, leases, limiter, cfg.ProjectID)
	trail := audit.NewTrail(s)
	service := campaign.NewService(s, leases, dispatcher, trail)
	server := campaign.NewServer(service, cfg.ListenAddr)

	// Exploration worker pool, when an explorer is configured.
	var sched *scheduler.Scheduler
	if cfg.Explorer == "script" {
		exp := script.New(cfg.ExplorerInterpreter, cfg.ExplorerScript, cfg.WorkDir())
		sched = scheduler.New(service, exp, cfg.Scheduler)
		sched.Start()
		defer sched.Stop()
	} else {
		log.Println("No explorer configured, running coordination API only")
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing route store...")
	if err := s.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
