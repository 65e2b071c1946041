package config

import (
	"fmt"
	"math"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate re-checks a configuration, e.g. after command line overrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation on the configuration after defaults have been applied
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", cfg.Workers)
	}
	if cfg.MaxEvaluations < 0 {
		return fmt.Errorf("max_evaluations cannot be negative, got %d", cfg.MaxEvaluations)
	}

	if err := validateParameters(cfg.Parameters); err != nil {
		return fmt.Errorf("parameters validation failed: %w", err)
	}
	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer validation failed: %w", err)
	}
	if err := validateFitness(&cfg.Fitness); err != nil {
		return fmt.Errorf("fitness validation failed: %w", err)
	}
	if err := validateSimulator(&cfg.Simulator); err != nil {
		return fmt.Errorf("simulator validation failed: %w", err)
	}
	if err := validateOutput(&cfg.Output); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}
	if err := validateConvergence(&cfg.Convergence); err != nil {
		return fmt.Errorf("convergence validation failed: %w", err)
	}

	validBackoffs := map[string]bool{
		"none":        true,
		"constant":    true,
		"linear":      true,
		"exponential": true,
	}
	if !validBackoffs[cfg.FailureBackoff.Type] {
		return fmt.Errorf("invalid failure_backoff type: %s (must be none, constant, linear, or exponential)", cfg.FailureBackoff.Type)
	}
	if cfg.FailureBackoff.BaseMs < 0 || cfg.FailureBackoff.MaxMs < 0 {
		return fmt.Errorf("failure_backoff delays cannot be negative")
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be memory or sqlite)", cfg.Storage.Backend)
	}

	return nil
}

func validateParameters(params []Parameter) error {
	if len(params) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}
	names := make(map[string]bool)
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		names[p.Name] = true
		if math.IsNaN(p.Low) || math.IsNaN(p.High) || math.IsInf(p.Low, 0) || math.IsInf(p.High, 0) {
			return fmt.Errorf("parameter %s: bounds must be finite", p.Name)
		}
		if p.Low >= p.High {
			return fmt.Errorf("parameter %s: low (%g) must be below high (%g)", p.Name, p.Low, p.High)
		}
		if p.Default < p.Low || p.Default > p.High {
			return fmt.Errorf("parameter %s: default %g outside [%g, %g]", p.Name, p.Default, p.Low, p.High)
		}
	}
	return nil
}

func validateOptimizer(o *Optimizer) error {
	if o.Gamma <= 0 || o.Gamma > 1 {
		return fmt.Errorf("gamma must be in (0, 1], got %g", o.Gamma)
	}
	if o.Candidates <= 0 {
		return fmt.Errorf("candidates must be positive, got %d", o.Candidates)
	}
	if o.PriorWeight < 0 {
		return fmt.Errorf("prior_weight cannot be negative, got %g", o.PriorWeight)
	}
	if o.StartupTrials < 0 {
		return fmt.Errorf("startup_trials cannot be negative, got %d", o.StartupTrials)
	}
	return nil
}

func validateFitness(f *Fitness) error {
	if f.TimeStep <= 0 {
		return fmt.Errorf("time_step must be positive, got %g", f.TimeStep)
	}
	if f.DistanceWeight < 0 || f.StableTimeWeight < 0 || f.VelocityWeight < 0 {
		return fmt.Errorf("weights cannot be negative")
	}
	if f.StabilityThreshold <= 0 {
		return fmt.Errorf("stability_threshold must be positive, got %g", f.StabilityThreshold)
	}
	if f.MaxTraceDuration <= 0 {
		return fmt.Errorf("max_trace_duration must be positive, got %g", f.MaxTraceDuration)
	}
	return nil
}

func validateSimulator(s *Simulator) error {
	if s.Binary == "" {
		return fmt.Errorf("binary cannot be empty")
	}
	if s.ArtifactFlag == "" {
		return fmt.Errorf("artifact_flag cannot be empty")
	}
	if _, err := s.GetTimeout(); err != nil {
		return fmt.Errorf("invalid timeout %s: %w", s.Timeout, err)
	}
	if s.LaunchRatePerSec < 0 {
		return fmt.Errorf("launch_rate_per_sec cannot be negative, got %g", s.LaunchRatePerSec)
	}
	if s.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("breaker failure_threshold cannot be negative, got %d", s.Breaker.FailureThreshold)
	}
	if _, err := s.Breaker.GetOpenTimeout(); err != nil {
		return fmt.Errorf("invalid breaker open_timeout %s: %w", s.Breaker.OpenTimeout, err)
	}
	return nil
}

func validateOutput(o *Output) error {
	if o.Dir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if o.GridWidth <= 0 || o.GridHeight <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", o.GridWidth, o.GridHeight)
	}
	return nil
}

func validateConvergence(c *Convergence) error {
	switch c.Strategy {
	case "none", "no_improvement", "plateau", "variance", "combined":
	default:
		return fmt.Errorf("invalid strategy: %s (must be none, no_improvement, plateau, variance, or combined)", c.Strategy)
	}
	if c.MinTrials < 0 || c.NoImprovementTrials < 0 || c.PlateauTrials < 0 {
		return fmt.Errorf("trial counts cannot be negative")
	}
	if c.ScoreTolerance < 0 || c.RelativeStdDev < 0 {
		return fmt.Errorf("tolerances cannot be negative")
	}
	return nil
}
