package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ListenAddr != DefaultConfig().ListenAddr {
		t.Errorf("Expected default listen addr, got %s", cfg.ListenAddr)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.ProjectID = "webshop"
	cfg.LeaseTTL = 5 * time.Minute
	cfg.Explorer = "script"
	cfg.ExplorerScript = "/opt/explore.sh"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.ProjectID != "webshop" {
		t.Errorf("Expected project webshop, got %s", loaded.ProjectID)
	}
	if loaded.LeaseTTL != 5*time.Minute {
		t.Errorf("Expected 5m lease TTL, got %v", loaded.LeaseTTL)
	}
	if loaded.ExplorerScript != "/opt/explore.sh" {
		t.Errorf("Expected explorer script preserved, got %s", loaded.ExplorerScript)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("project_id: shop\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ProjectID != "shop" {
		t.Errorf("Expected project shop, got %s", cfg.ProjectID)
	}
	if cfg.RateInterval != DefaultConfig().RateInterval {
		t.Errorf("Expected default rate interval, got %v", cfg.RateInterval)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	cfg.Explorer = "telepathy"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown explorer")
	}

	cfg = DefaultConfig()
	cfg.Explorer = "script"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for script explorer without a script path")
	}

	cfg = DefaultConfig()
	cfg.LeaseTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero lease TTL")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/wf"

	if cfg.DBPath() != filepath.Join("/tmp/wf", "routes.db") {
		t.Errorf("Unexpected db path: %s", cfg.DBPath())
	}
	if cfg.MarkerDir() != filepath.Join("/tmp/wf", "markers") {
		t.Errorf("Unexpected marker dir: %s", cfg.MarkerDir())
	}
	if cfg.WorkDir() != filepath.Join("/tmp/wf", "work") {
		t.Errorf("Unexpected work dir: %s", cfg.WorkDir())
	}
}
