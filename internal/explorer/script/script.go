// Package script runs an external exploration script through an allowlisted
// interpreter. The script receives the user level and route as arguments and
// prints a JSON result on stdout.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/example/wayfinder/internal/explorer"
)

// allowedInterpreters defines the strict allowlist of interpreters the
// explorer script may be run with.
var allowedInterpreters = map[string]bool{
	"sh":      true,
	"bash":    true,
	"python3": true,
	"node":    true,
}

// Script implements the Explorer interface by spawning a subprocess.
type Script struct {
	interpreter string
	scriptPath  string
	workDir     string
}

// New creates a script-backed explorer.
func New(interpreter, scriptPath, workDir string) *Script {
	return &Script{
		interpreter: interpreter,
		scriptPath:  scriptPath,
		workDir:     workDir,
	}
}

// Name returns the explorer identifier.
func (s *Script) Name() string {
	return "script"
}

// IsAllowed checks if the interpreter is in the allowlist.
func (s *Script) IsAllowed() bool {
	return allowedInterpreters[s.interpreter]
}

// Explore runs the script with the user level and route as arguments and
// decodes the JSON result it prints on stdout.
func (s *Script) Explore(ctx context.Context, userLevel, route string) (*explorer.Result, error) {
	if !s.IsAllowed() {
		return nil, fmt.Errorf("interpreter not allowed: %s", s.interpreter)
	}

	cmd := exec.CommandContext(ctx, s.interpreter, s.scriptPath, userLevel, route)
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("explorer script exited %d: %s", exitError.ExitCode(), stderr.String())
		}
		return nil, fmt.Errorf("exec error: %w", err)
	}

	var result explorer.Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("explorer script produced invalid output: %w", err)
	}
	return &result, nil
}
