// Package tpe adapts goptuna's tree-structured Parzen estimator sampler to a
// one-dimensional ask/tell model. Lower scores are better.
package tpe

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
)

// ErrOutOfRange is returned by Tell for values outside the estimator's range
var ErrOutOfRange = errors.New("tpe: value outside range")

// paramName is the single parameter of every per-dimension study
const paramName = "x"

// maxPending bounds the proposals waiting for a score. Proposals whose
// evaluation failed are never told and are dropped oldest first.
const maxPending = 256

// Range is a closed real interval
type Range struct {
	Low  float64
	High float64
}

// Width returns High - Low
func (r Range) Width() float64 {
	return r.High - r.Low
}

// Contains reports whether v lies in [Low, High]
func (r Range) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Low && v <= r.High
}

// Options tune the estimator
type Options struct {
	Gamma         float64 // share of observations treated as good
	Candidates    int     // expected improvement candidates per Ask
	PriorWeight   float64 // weight of the prior component
	StartupTrials int     // observations answered with uniform samples first
	Seed          uint64  // 0 = time based
}

// DefaultOptions returns the settings used by the search when none are configured
func DefaultOptions() Options {
	return Options{Gamma: 0.1, Candidates: 24, PriorWeight: 1.0, StartupTrials: 10}
}

type pending struct {
	trialID int
	value   float64
}

// Estimator is the per-parameter model backed by one goptuna study. It is
// not safe for concurrent use.
type Estimator struct {
	r       Range
	opts    Options
	study   *goptuna.Study
	dist    goptuna.UniformDistribution
	rng     *rand.Rand
	pending []pending
	told    int
}

// New creates an estimator over r
func New(r Range, opts Options) (*Estimator, error) {
	if !(r.Low < r.High) || math.IsInf(r.Low, 0) || math.IsInf(r.High, 0) {
		return nil, fmt.Errorf("tpe: invalid range [%g, %g]", r.Low, r.High)
	}
	def := DefaultOptions()
	if opts.Gamma <= 0 || opts.Gamma > 1 {
		opts.Gamma = def.Gamma
	}
	if opts.Candidates <= 0 {
		opts.Candidates = def.Candidates
	}
	if opts.PriorWeight < 0 {
		opts.PriorWeight = def.PriorWeight
	}
	if opts.StartupTrials < 0 {
		opts.StartupTrials = def.StartupTrials
	}

	rng := utils.NewRand(opts.Seed)
	gamma := opts.Gamma
	sampler := tpe.NewSampler(
		tpe.SamplerOptionSeed(rng.Int64()),
		tpe.SamplerOptionNumberOfStartupTrials(opts.StartupTrials),
		tpe.SamplerOptionNumberOfEICandidates(opts.Candidates),
		tpe.SamplerOptionGammaFunc(func(n int) int {
			return max(1, int(math.Ceil(gamma*float64(n))))
		}),
		tpe.SamplerOptionParzenEstimatorParams(tpe.ParzenEstimatorParams{
			ConsiderPrior:     opts.PriorWeight > 0,
			PriorWeight:       opts.PriorWeight,
			ConsiderMagicClip: true,
			ConsiderEndpoints: false,
			Weights:           tpe.DefaultWeights,
		}),
	)
	study, err := goptuna.CreateStudy("paramsearch",
		goptuna.StudyOptionSampler(sampler),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
	)
	if err != nil {
		return nil, fmt.Errorf("tpe: create study: %w", err)
	}

	return &Estimator{
		r:     r,
		opts:  opts,
		study: study,
		dist:  goptuna.UniformDistribution{High: r.High, Low: r.Low},
		rng:   rng,
	}, nil
}

// Range returns the estimator's domain
func (e *Estimator) Range() Range {
	return e.r
}

// Len returns the number of recorded observations
func (e *Estimator) Len() int {
	return e.told
}

// Ask proposes the next value to evaluate. The result always lies in the
// range; if the study cannot produce a value a uniform sample is returned.
func (e *Estimator) Ask() float64 {
	v, err := e.ask()
	if err != nil {
		logger.Warn("tpe proposal failed, sampling uniformly", "error", err)
		return e.r.Low + e.rng.Float64()*e.r.Width()
	}
	return utils.ClampFloat64(v, e.r.Low, e.r.High)
}

func (e *Estimator) ask() (float64, error) {
	id, err := e.study.Storage.CreateNewTrial(e.study.ID)
	if err != nil {
		return 0, err
	}
	trial := goptuna.Trial{Study: e.study, ID: id}
	v, err := trial.SuggestFloat(paramName, e.r.Low, e.r.High)
	if err != nil {
		_ = e.study.Storage.SetTrialState(id, goptuna.TrialStateFail)
		return 0, err
	}

	if len(e.pending) == maxPending {
		_ = e.study.Storage.SetTrialState(e.pending[0].trialID, goptuna.TrialStateFail)
		e.pending = e.pending[1:]
	}
	e.pending = append(e.pending, pending{trialID: id, value: v})
	return v, nil
}

// Tell records that value scored score. A value proposed by Ask completes
// the trial it came from; any other value is recorded as a new trial.
func (e *Estimator) Tell(value, score float64) error {
	if !e.r.Contains(value) {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, value, e.r.Low, e.r.High)
	}
	if math.IsNaN(score) {
		return fmt.Errorf("tpe: score for %g is NaN", value)
	}

	id, ok := e.takePending(value)
	if !ok {
		var err error
		if id, err = e.study.Storage.CreateNewTrial(e.study.ID); err != nil {
			return fmt.Errorf("tpe: create trial: %w", err)
		}
		if err := e.study.Storage.SetTrialParam(id, paramName, value, e.dist); err != nil {
			return fmt.Errorf("tpe: record %g: %w", value, err)
		}
	}
	if err := e.study.Storage.SetTrialValue(id, score); err != nil {
		return fmt.Errorf("tpe: record score for %g: %w", value, err)
	}
	if err := e.study.Storage.SetTrialState(id, goptuna.TrialStateComplete); err != nil {
		return fmt.Errorf("tpe: complete trial for %g: %w", value, err)
	}
	e.told++
	return nil
}

func (e *Estimator) takePending(value float64) (int, bool) {
	for i, p := range e.pending {
		if p.value == value {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return p.trialID, true
		}
	}
	return 0, false
}

// Propose is Ask under the name the search driver's Model interface uses
func (e *Estimator) Propose() float64 {
	return e.Ask()
}

// Observe is Tell under the name the search driver's Model interface uses
func (e *Estimator) Observe(value, score float64) error {
	return e.Tell(value, score)
}
