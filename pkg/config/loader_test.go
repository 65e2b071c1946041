package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Test loading the actual config file
	cfg, err := LoadConfig("../../config/config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.RunID != "swarm-a-r" {
		t.Errorf("Expected run_id 'swarm-a-r', got '%s'", cfg.RunID)
	}

	names := cfg.ParameterNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "r" {
		t.Fatalf("Expected parameters [a r], got %v", names)
	}
	if cfg.Parameters[1].High != 10 {
		t.Errorf("Expected r high 10, got %f", cfg.Parameters[1].High)
	}

	if cfg.Fitness.TargetDistance != 3.0 {
		t.Errorf("Expected target distance 3.0, got %f", cfg.Fitness.TargetDistance)
	}
	if cfg.Fitness.VelocityWeight != 250 {
		t.Errorf("Expected velocity weight 250, got %f", cfg.Fitness.VelocityWeight)
	}

	timeout, err := cfg.Simulator.GetTimeout()
	if err != nil {
		t.Fatalf("Failed to parse timeout: %v", err)
	}
	if timeout != 15*time.Minute {
		t.Errorf("Expected timeout 15m, got %v", timeout)
	}
	if cfg.Simulator.Breaker.FailureThreshold != 5 {
		t.Errorf("Expected breaker threshold 5, got %d", cfg.Simulator.Breaker.FailureThreshold)
	}

	if cfg.Convergence.Strategy != "none" || cfg.Convergence.PlateauTrials != 50 {
		t.Errorf("Expected convergence none/50, got %s/%d", cfg.Convergence.Strategy, cfg.Convergence.PlateauTrials)
	}

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected sqlite storage, got %s", cfg.Storage.Backend)
	}
	if cfg.Output.GridWidth != 50 || cfg.Output.GridHeight != 40 {
		t.Errorf("Expected 50x40 grid, got %dx%d", cfg.Output.GridWidth, cfg.Output.GridHeight)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "invalid log_level") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "Valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "Invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "invalid" },
			expectError: true,
		},
		{
			name:        "Invalid log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			expectError: true,
		},
		{
			name:        "Unknown convergence strategy",
			mutate:      func(c *Config) { c.Convergence.Strategy = "patience" },
			expectError: true,
		},
		{
			name:        "Combined convergence strategy",
			mutate:      func(c *Config) { c.Convergence.Strategy = "combined" },
			expectError: false,
		},
		{
			name:        "Negative convergence window",
			mutate:      func(c *Config) { c.Convergence.PlateauTrials = -1 },
			expectError: true,
		},
		{
			name:        "Negative workers",
			mutate:      func(c *Config) { c.Workers = -1 },
			expectError: true,
		},
		{
			name:        "No parameters",
			mutate:      func(c *Config) { c.Parameters = nil },
			expectError: true,
		},
		{
			name: "Empty parameter name",
			mutate: func(c *Config) {
				c.Parameters[0].Name = ""
			},
			expectError: true,
		},
		{
			name: "Duplicate parameter name",
			mutate: func(c *Config) {
				c.Parameters[1].Name = c.Parameters[0].Name
			},
			expectError: true,
		},
		{
			name: "Inverted bounds",
			mutate: func(c *Config) {
				c.Parameters[0].Low, c.Parameters[0].High = 10, 0
			},
			expectError: true,
		},
		{
			name: "Default outside range",
			mutate: func(c *Config) {
				c.Parameters[0].Default = 11
			},
			expectError: true,
		},
		{
			name:        "Gamma above one",
			mutate:      func(c *Config) { c.Optimizer.Gamma = 1.5 },
			expectError: true,
		},
		{
			name:        "Zero candidates",
			mutate:      func(c *Config) { c.Optimizer.Candidates = 0 },
			expectError: true,
		},
		{
			name:        "Negative startup trials",
			mutate:      func(c *Config) { c.Optimizer.StartupTrials = -1 },
			expectError: true,
		},
		{
			name:        "Zero time step",
			mutate:      func(c *Config) { c.Fitness.TimeStep = 0 },
			expectError: true,
		},
		{
			name:        "Negative trace duration cap",
			mutate:      func(c *Config) { c.Fitness.MaxTraceDuration = -1 },
			expectError: true,
		},
		{
			name:        "Bad timeout",
			mutate:      func(c *Config) { c.Simulator.Timeout = "soon" },
			expectError: true,
		},
		{
			name:        "Bad breaker timeout",
			mutate:      func(c *Config) { c.Simulator.Breaker.OpenTimeout = "later" },
			expectError: true,
		},
		{
			name:        "Zero grid",
			mutate:      func(c *Config) { c.Output.GridWidth = 0 },
			expectError: true,
		},
		{
			name:        "Unknown backoff",
			mutate:      func(c *Config) { c.FailureBackoff.Type = "fibonacci" },
			expectError: true,
		},
		{
			name:        "Unknown storage backend",
			mutate:      func(c *Config) { c.Storage.Backend = "postgres" },
			expectError: true,
		},
		{
			name: "Sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Backend = "sqlite"
				c.Storage.Path = ""
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateMethodAfterOverride(t *testing.T) {
	cfg := Default()
	cfg.MaxEvaluations = -3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max_evaluations")
	}
}
