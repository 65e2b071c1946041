package config

import "time"

// Config is the full configuration of a parameter search run
type Config struct {
	LogLevel        string      `yaml:"log_level"`
	LogFormat       string      `yaml:"log_format"`
	RunID           string      `yaml:"run_id"`
	Workers         int         `yaml:"workers"`          // 0 = one per available processor
	MaxEvaluations  int         `yaml:"max_evaluations"`  // 0 = until interrupted
	Seed            uint64      `yaml:"seed"`             // 0 = time based
	SentinelFitness float64     `yaml:"sentinel_fitness"` // score attached to each parameter's default
	Parameters      []Parameter `yaml:"parameters"`
	Optimizer       Optimizer   `yaml:"optimizer"`
	Fitness         Fitness     `yaml:"fitness"`
	Simulator       Simulator   `yaml:"simulator"`
	FailureBackoff  Backoff     `yaml:"failure_backoff"`
	Convergence     Convergence `yaml:"convergence"`
	Output          Output      `yaml:"output"`
	Storage         Storage     `yaml:"storage"`
	Status          Status      `yaml:"status"`
	Notify          Notify      `yaml:"notify"`
}

// Parameter is one tunable dimension of the search
type Parameter struct {
	Name    string  `yaml:"name"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	Default float64 `yaml:"default"`
}

// Optimizer holds the Parzen estimator settings shared by every parameter
type Optimizer struct {
	Gamma         float64 `yaml:"gamma"`
	Candidates    int     `yaml:"candidates"`
	PriorWeight   float64 `yaml:"prior_weight"`
	StartupTrials int     `yaml:"startup_trials"` // uniform proposals before the estimator takes over
}

// Fitness holds the scoring policy constants
type Fitness struct {
	TargetDistance     float64 `yaml:"target_distance"`
	DistanceWeight     float64 `yaml:"distance_weight"`
	StableTimeWeight   float64 `yaml:"stable_time_weight"`
	VelocityWeight     float64 `yaml:"velocity_weight"`
	StabilityThreshold float64 `yaml:"stability_threshold"`
	TimeStep           float64 `yaml:"time_step"`
	MaxTraceDuration   float64 `yaml:"max_trace_duration"` // seconds, traces declaring more are rejected
}

// Simulator describes how to launch the external simulation binary
type Simulator struct {
	RepoPath         string   `yaml:"repo_path"`
	Binary           string   `yaml:"binary"`   // relative to repo_path
	LibDir           string   `yaml:"lib_dir"`  // relative to repo_path, exported as LD_LIBRARY_PATH
	WorkDir          string   `yaml:"work_dir"` // where artifacts are written, defaults to repo_path
	BaseArgs         []string `yaml:"base_args"`
	ArtifactFlag     string   `yaml:"artifact_flag"`
	Timeout          string   `yaml:"timeout"` // e.g. "10m", empty = no timeout
	LaunchRatePerSec float64  `yaml:"launch_rate_per_sec"`
	Breaker          Breaker  `yaml:"breaker"`
}

// Breaker configures the launch circuit breaker
type Breaker struct {
	FailureThreshold int    `yaml:"failure_threshold"` // 0 disables the breaker
	OpenTimeout      string `yaml:"open_timeout"`
}

// Backoff configures the pause a worker takes after consecutive failures
type Backoff struct {
	Type   string `yaml:"type"` // none, constant, linear, exponential
	BaseMs int    `yaml:"base_ms"`
	MaxMs  int    `yaml:"max_ms"`
}

// Convergence configures early stopping. An empty strategy (or "none")
// runs until interrupted or max_evaluations is reached.
type Convergence struct {
	Strategy            string  `yaml:"strategy"` // none, no_improvement, plateau, variance, combined
	MinTrials           int     `yaml:"min_trials"`
	NoImprovementTrials int     `yaml:"no_improvement_trials"`
	PlateauTrials       int     `yaml:"plateau_trials"`
	ScoreTolerance      float64 `yaml:"score_tolerance"`
	RelativeStdDev      float64 `yaml:"relative_stddev"`
}

// Output configures persisted artifacts and the heatmap
type Output struct {
	Dir        string `yaml:"dir"`
	Heatmap    string `yaml:"heatmap"`
	GridWidth  int    `yaml:"grid_width"`
	GridHeight int    `yaml:"grid_height"`
}

// Storage selects the trial journal backend
type Storage struct {
	Backend string `yaml:"backend"` // memory or sqlite
	Path    string `yaml:"path"`
}

// Status configures the live status endpoints (empty address = disabled)
type Status struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// Notify configures the completion callback
type Notify struct {
	CallbackURL    string `yaml:"callback_url"`
	CallbackSecret string `yaml:"callback_secret"`
}

// GetTimeout parses the per-evaluation timeout (0 when unset)
func (s *Simulator) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}

// GetOpenTimeout parses how long the breaker stays open
func (b *Breaker) GetOpenTimeout() (time.Duration, error) {
	if b.OpenTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(b.OpenTimeout)
}

// ParameterNames returns the parameter names in declaration order
func (c *Config) ParameterNames() []string {
	names := make([]string, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		names = append(names, p.Name)
	}
	return names
}
