package search

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// ConvergenceStrategy decides whether the search can stop early. trials are
// in insertion order.
type ConvergenceStrategy interface {
	CheckConvergence(trials []models.Trial) (bool, string)
	Name() string
}

// ConvergenceConfig holds the thresholds shared by the strategies
type ConvergenceConfig struct {
	// MinTrials is the minimum number of trials before convergence can be detected
	MinTrials int
	// NoImprovementTrials is how many trials may pass without a new best
	NoImprovementTrials int
	// PlateauTrials is the window of recent trials checked for a plateau
	PlateauTrials int
	// ScoreTolerance is the absolute fitness range that counts as a plateau
	ScoreTolerance float64
	// RelativeStdDev is the coefficient of variation below which scores are stable
	RelativeStdDev float64
}

// DefaultConvergenceConfig returns the thresholds used when a strategy is
// enabled without explicit values
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		MinTrials:           20,
		NoImprovementTrials: 200,
		PlateauTrials:       50,
		ScoreTolerance:      1e-3,
		RelativeStdDev:      0.01,
	}
}

// NoImprovementStrategy converges when the best fitness has not improved for
// NoImprovementTrials trials
type NoImprovementStrategy struct {
	config ConvergenceConfig
}

func NewNoImprovementStrategy(config ConvergenceConfig) *NoImprovementStrategy {
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(trials []models.Trial) (bool, string) {
	if len(trials) < s.config.MinTrials || s.config.NoImprovementTrials <= 0 {
		return false, ""
	}

	best := math.Inf(1)
	bestIdx := -1
	for i, t := range trials {
		if t.Fitness < best {
			best = t.Fitness
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return false, ""
	}

	since := len(trials) - 1 - bestIdx
	if since >= s.config.NoImprovementTrials {
		return true, fmt.Sprintf("no improvement for %d trials (best %g at trial %d)", since, best, trials[bestIdx].Seq)
	}
	return false, ""
}

// PlateauStrategy converges when the last PlateauTrials fitnesses lie within
// ScoreTolerance of each other
type PlateauStrategy struct {
	config ConvergenceConfig
}

func NewPlateauStrategy(config ConvergenceConfig) *PlateauStrategy {
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(trials []models.Trial) (bool, string) {
	window := s.config.PlateauTrials
	if len(trials) < s.config.MinTrials || window <= 0 || len(trials) < window {
		return false, ""
	}

	recent := trials[len(trials)-window:]
	lo, hi := recent[0].Fitness, recent[0].Fitness
	for _, t := range recent[1:] {
		lo = math.Min(lo, t.Fitness)
		hi = math.Max(hi, t.Fitness)
	}

	if spread := hi - lo; spread <= s.config.ScoreTolerance {
		return true, fmt.Sprintf("fitness plateaued for %d trials (range %.6f)", window, spread)
	}
	return false, ""
}

// VarianceStrategy converges when the relative standard deviation of the
// last PlateauTrials fitnesses drops below RelativeStdDev
type VarianceStrategy struct {
	config ConvergenceConfig
}

func NewVarianceStrategy(config ConvergenceConfig) *VarianceStrategy {
	return &VarianceStrategy{config: config}
}

func (s *VarianceStrategy) Name() string {
	return "variance"
}

func (s *VarianceStrategy) CheckConvergence(trials []models.Trial) (bool, string) {
	window := s.config.PlateauTrials
	if len(trials) < s.config.MinTrials || window < 2 || len(trials) < window {
		return false, ""
	}

	scores := make([]float64, window)
	for i, t := range trials[len(trials)-window:] {
		scores[i] = t.Fitness
	}
	mean, std := stat.MeanStdDev(scores, nil)
	if mean <= 0 {
		return false, ""
	}

	if rel := std / mean; rel < s.config.RelativeStdDev {
		return true, fmt.Sprintf("low fitness variance (relative stddev %.4f%%)", rel*100)
	}
	return false, ""
}

// CombinedStrategy converges as soon as any of its strategies does
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

func NewCombinedStrategy(strategies ...ConvergenceStrategy) *CombinedStrategy {
	return &CombinedStrategy{strategies: strategies}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(trials []models.Trial) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(trials); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// NewConvergenceStrategy returns the named strategy, or nil for "" and "none"
func NewConvergenceStrategy(name string, config ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "no_improvement":
		return NewNoImprovementStrategy(config), nil
	case "plateau":
		return NewPlateauStrategy(config), nil
	case "variance":
		return NewVarianceStrategy(config), nil
	case "combined":
		return NewCombinedStrategy(
			NewNoImprovementStrategy(config),
			NewPlateauStrategy(config),
			NewVarianceStrategy(config),
		), nil
	default:
		return nil, fmt.Errorf("unknown convergence strategy %q", name)
	}
}
