package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "explore.sh")
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		interpreter string
		allowed     bool
	}{
		{"sh", true},
		{"bash", true},
		{"python3", true},
		{"node", true},
		{"perl", false},
		{"rm", false},
		{"", false},
	}

	for _, tt := range tests {
		s := New(tt.interpreter, "explore.sh", "")
		if got := s.IsAllowed(); got != tt.allowed {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.interpreter, got, tt.allowed)
		}
	}
}

func TestExplore(t *testing.T) {
	path := writeScript(t, `#!/bin/sh
echo '{"sub_routes": ["/users/42/orders", "/users/42/settings"], "notes": "two tabs, one form"}'
`)

	s := New("sh", path, "")
	result, err := s.Explore(context.Background(), "admin", "/users/:id")
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(result.SubRoutes) != 2 {
		t.Errorf("Expected 2 sub-routes, got %v", result.SubRoutes)
	}
	if result.Notes != "two tabs, one form" {
		t.Errorf("Unexpected notes: %q", result.Notes)
	}
}

func TestExplore_PassesArguments(t *testing.T) {
	path := writeScript(t, `#!/bin/sh
printf '{"sub_routes": [], "notes": "%s %s"}' "$1" "$2"
`)

	s := New("sh", path, "")
	result, err := s.Explore(context.Background(), "viewer", "/reports")
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if result.Notes != "viewer /reports" {
		t.Errorf("Arguments not passed through: %q", result.Notes)
	}
}

func TestExplore_NotAllowed(t *testing.T) {
	s := New("perl", "explore.pl", "")
	if _, err := s.Explore(context.Background(), "admin", "/"); err == nil {
		t.Error("Expected error for non-allowed interpreter")
	}
}

func TestExplore_ScriptFailure(t *testing.T) {
	path := writeScript(t, `#!/bin/sh
echo "boom" >&2
exit 3
`)

	s := New("sh", path, "")
	if _, err := s.Explore(context.Background(), "admin", "/"); err == nil {
		t.Error("Expected error for failing script")
	}
}

func TestExplore_InvalidOutput(t *testing.T) {
	path := writeScript(t, `#!/bin/sh
echo "not json"
`)

	s := New("sh", path, "")
	if _, err := s.Explore(context.Background(), "admin", "/"); err == nil {
		t.Error("Expected error for invalid output")
	}
}

func TestName(t *testing.T) {
	s := New("sh", "explore.sh", "")
	if s.Name() != "script" {
		t.Errorf("Expected name 'script', got %s", s.Name())
	}
}
