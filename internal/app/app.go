// Package app assembles a search from its configuration: optimizer state,
// simulator evaluator, journal, metrics, and the post-run aggregation.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/internal/aggregate"
	"github.com/GoSim-25-26J-441/paramsearch/internal/fitness"
	"github.com/GoSim-25-26J-441/paramsearch/internal/heatmap"
	"github.com/GoSim-25-26J-441/paramsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/paramsearch/internal/search"
	"github.com/GoSim-25-26J-441/paramsearch/internal/simulator"
	"github.com/GoSim-25-26J-441/paramsearch/internal/statusd"
	"github.com/GoSim-25-26J-441/paramsearch/internal/storage"
	"github.com/GoSim-25-26J-441/paramsearch/internal/tpe"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/config"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
)

// heatmap pixels per grid cell
const cellPixels = 10

// App is one configured search
type App struct {
	cfg      *config.Config
	store    storage.Store
	recorder *metrics.Recorder
	driver   *search.Driver
	notifier *statusd.Notifier
}

// New wires a search from cfg and initialises its trial journal. cfg should
// come from config.LoadConfig or config.ParseConfigYAML so defaults are set.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	state, err := NewState(cfg)
	if err != nil {
		return nil, err
	}

	scorer, err := fitness.NewScorer(WeightsFromConfig(&cfg.Fitness))
	if err != nil {
		return nil, fmt.Errorf("invalid fitness settings: %w", err)
	}

	runnerOpts, err := simulator.OptionsFromConfig(&cfg.Simulator, cfg.ParameterNames())
	if err != nil {
		return nil, err
	}
	runner, err := simulator.NewRunner(runnerOpts)
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Simulator.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid simulator timeout: %w", err)
	}

	convergence, err := search.NewConvergenceStrategy(cfg.Convergence.Strategy, ConvergenceFromConfig(&cfg.Convergence))
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("failed to initialise %s store: %w", cfg.Storage.Backend, err)
	}

	recorder := metrics.NewRecorder()
	ids := utils.NewArtifactIDs(true)

	driver, err := search.NewDriver(state, simulator.NewEvaluator(runner, scorer), search.Options{
		Workers:        cfg.Workers,
		WorkDir:        cfg.Simulator.WorkDir,
		OutDir:         cfg.Output.Dir,
		MaxEvaluations: cfg.MaxEvaluations,
		Backoff:        utils.BackoffFromConfig(cfg.FailureBackoff.Type, cfg.FailureBackoff.BaseMs, cfg.FailureBackoff.MaxMs),
		NewArtifactID:  ids.Next,
		Store:          store,
		RunID:          cfg.RunID,
		Metrics:        recorder,
		EvalTimeout:    timeout,
		Convergence:    convergence,
	})
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}

	return &App{
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		driver:   driver,
		notifier: statusd.NewNotifier(),
	}, nil
}

// NewState builds one Parzen estimator per configured parameter and seeds
// each with its default value scored at the sentinel fitness
func NewState(cfg *config.Config) (*search.State, error) {
	params := make([]*search.Parameter, 0, len(cfg.Parameters))
	for i, p := range cfg.Parameters {
		est, err := tpe.New(tpe.Range{Low: p.Low, High: p.High}, tpe.Options{
			Gamma:         cfg.Optimizer.Gamma,
			Candidates:    cfg.Optimizer.Candidates,
			PriorWeight:   cfg.Optimizer.PriorWeight,
			StartupTrials: cfg.Optimizer.StartupTrials,
			Seed:          utils.DeriveSeed(cfg.Seed, i),
		})
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		param := search.NewParameter(p.Name, p.Low, p.High, est)
		if err := param.Seed(p.Default, cfg.SentinelFitness); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		params = append(params, param)
	}
	return search.NewState(params)
}

// WeightsFromConfig maps the fitness section onto scorer weights
func WeightsFromConfig(f *config.Fitness) fitness.Weights {
	return fitness.Weights{
		TargetDistance:     f.TargetDistance,
		DistanceWeight:     f.DistanceWeight,
		StableTimeWeight:   f.StableTimeWeight,
		VelocityWeight:     f.VelocityWeight,
		StabilityThreshold: f.StabilityThreshold,
		TimeStep:           f.TimeStep,
		MaxDuration:        f.MaxTraceDuration,
	}
}

// ConvergenceFromConfig maps the convergence section onto strategy thresholds
func ConvergenceFromConfig(c *config.Convergence) search.ConvergenceConfig {
	return search.ConvergenceConfig{
		MinTrials:           c.MinTrials,
		NoImprovementTrials: c.NoImprovementTrials,
		PlateauTrials:       c.PlateauTrials,
		ScoreTolerance:      c.ScoreTolerance,
		RelativeStdDev:      c.RelativeStdDev,
	}
}

func (a *App) Driver() *search.Driver {
	return a.driver
}

func (a *App) Recorder() *metrics.Recorder {
	return a.recorder
}

// Run resumes any journaled trials, runs the search until it is interrupted,
// exhausts its evaluation budget, or fails fatally, then aggregates the
// trials and sends the completion callback. The returned error is the fatal
// search error or the heatmap write error, whichever happened first.
func (a *App) Run(ctx context.Context) (models.Summary, error) {
	restored, err := a.driver.Resume(ctx)
	if err != nil {
		return models.Summary{}, err
	}
	if restored > 0 {
		logger.Info("resumed journaled trials", "run_id", a.cfg.RunID, "trials", restored)
	}

	runErr := a.driver.Run(ctx)

	summary, aggErr := a.Summarize()
	if runErr != nil {
		summary.Error = runErr.Error()
	} else if aggErr != nil {
		summary.Error = aggErr.Error()
	}

	// the callback is sent even after an interrupt
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := a.notifier.Send(notifyCtx, a.cfg.Notify.CallbackURL, a.cfg.Notify.CallbackSecret, summary); err != nil {
		logger.Error("completion callback failed", "run_id", a.cfg.RunID, "error", err)
	}

	if runErr != nil {
		return summary, runErr
	}
	return summary, aggErr
}

// Summarize aggregates the recorded trials over the first two parameters and
// renders the heatmap
func (a *App) Summarize() (models.Summary, error) {
	snap := a.driver.Snapshot()
	ended := time.Now().UTC()
	summary := models.Summary{
		Snapshot: snap,
		EndedAt:  ended,
	}
	if !snap.StartedAt.IsZero() {
		summary.Duration = ended.Sub(snap.StartedAt).Round(time.Millisecond).String()
	}

	if len(a.cfg.Parameters) < 2 {
		logger.Info("fewer than two parameters, skipping heatmap")
		return summary, nil
	}

	px, py := a.cfg.Parameters[0], a.cfg.Parameters[1]
	grid := aggregate.Grid{Width: a.cfg.Output.GridWidth, Height: a.cfg.Output.GridHeight}
	res, err := aggregate.Build(a.driver.Trials(),
		aggregate.Axis{Name: px.Name, Low: px.Low, High: px.High},
		aggregate.Axis{Name: py.Name, Low: py.Low, High: py.High},
		grid)
	if errors.Is(err, aggregate.ErrNoTrials) {
		logger.Warn("no successful trials, skipping heatmap", "run_id", a.cfg.RunID)
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("failed to aggregate trials: %w", err)
	}
	if !math.IsInf(res.MinFitness, 0) && !math.IsInf(res.MaxFitness, 0) {
		summary.MinFitness = res.MinFitness
		summary.MaxFitness = res.MaxFitness
	}

	path := filepath.Join(a.cfg.Output.Dir, a.cfg.Output.Heatmap)
	if err := heatmap.Render(res, path, grid.Width*cellPixels, grid.Height*cellPixels); err != nil {
		return summary, fmt.Errorf("failed to write heatmap: %w", err)
	}
	summary.Heatmap = path
	logger.Info("heatmap written", "path", path, "cells", len(res.Cells),
		"min_fitness", res.MinFitness, "max_fitness", res.MaxFitness)
	return summary, nil
}

// Close releases the trial journal
func (a *App) Close() error {
	return storage.CloseIfSupported(a.store)
}
