package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes, fills in defaults and validates it.
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

// Default returns the configuration used when no file is given: the two
// swarm parameters a and r over [0, 10] seeded at 1.0.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.RunID == "" {
		cfg.RunID = "default"
	}
	if cfg.SentinelFitness == 0 {
		cfg.SentinelFitness = 1000
	}
	if len(cfg.Parameters) == 0 {
		cfg.Parameters = []Parameter{
			{Name: "a", Low: 0, High: 10, Default: 1},
			{Name: "r", Low: 0, High: 10, Default: 1},
		}
	}

	o := &cfg.Optimizer
	if o.Gamma == 0 {
		o.Gamma = 0.1
	}
	if o.Candidates == 0 {
		o.Candidates = 24
	}
	if o.PriorWeight == 0 {
		o.PriorWeight = 1.0
	}
	if o.StartupTrials == 0 {
		o.StartupTrials = 10
	}

	f := &cfg.Fitness
	if f.TargetDistance == 0 {
		f.TargetDistance = 3.0
	}
	if f.DistanceWeight == 0 {
		f.DistanceWeight = 200
	}
	if f.StableTimeWeight == 0 {
		f.StableTimeWeight = 1.0
	}
	if f.VelocityWeight == 0 {
		f.VelocityWeight = 250
	}
	if f.StabilityThreshold == 0 {
		f.StabilityThreshold = 30
	}
	if f.TimeStep == 0 {
		f.TimeStep = 0.1
	}
	if f.MaxTraceDuration == 0 {
		f.MaxTraceDuration = 3600
	}

	s := &cfg.Simulator
	if s.RepoPath == "" {
		s.RepoPath = "NS3"
	}
	if s.Binary == "" {
		s.Binary = "build/scratch/non-ideal/non-ideal"
	}
	if s.LibDir == "" {
		s.LibDir = "build/lib"
	}
	if s.WorkDir == "" {
		s.WorkDir = s.RepoPath
	}
	if s.BaseArgs == nil {
		s.BaseArgs = []string{"--duration=360"}
	}
	if s.ArtifactFlag == "" {
		s.ArtifactFlag = "positionsFile"
	}

	if cfg.FailureBackoff.Type == "" {
		cfg.FailureBackoff.Type = "exponential"
	}
	if cfg.FailureBackoff.BaseMs == 0 {
		cfg.FailureBackoff.BaseMs = 250
	}
	if cfg.FailureBackoff.MaxMs == 0 {
		cfg.FailureBackoff.MaxMs = 10000
	}

	conv := &cfg.Convergence
	if conv.Strategy == "" {
		conv.Strategy = "none"
	}
	if conv.MinTrials == 0 {
		conv.MinTrials = 20
	}
	if conv.NoImprovementTrials == 0 {
		conv.NoImprovementTrials = 200
	}
	if conv.PlateauTrials == 0 {
		conv.PlateauTrials = 50
	}
	if conv.ScoreTolerance == 0 {
		conv.ScoreTolerance = 1e-3
	}
	if conv.RelativeStdDev == 0 {
		conv.RelativeStdDev = 0.01
	}

	out := &cfg.Output
	if out.Dir == "" {
		out.Dir = "out"
	}
	if out.Heatmap == "" {
		out.Heatmap = "hot_cold.png"
	}
	if out.GridWidth == 0 {
		out.GridWidth = 50
	}
	if out.GridHeight == 0 {
		out.GridHeight = 40
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "paramsearch.db"
	}
}
