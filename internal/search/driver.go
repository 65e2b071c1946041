package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/paramsearch/internal/storage"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
	"github.com/sourcegraph/conc/pool"
)

// Evaluator runs one evaluation and scores it. Lower fitness is better.
// Failures should be reported as *LaunchError or *TraceError.
type Evaluator interface {
	Evaluate(ctx context.Context, a models.Assignment, artifactPath string) (float64, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, a models.Assignment, artifactPath string) (float64, error)

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(ctx context.Context, a models.Assignment, artifactPath string) (float64, error) {
	return f(ctx, a, artifactPath)
}

// Options configure a Driver
type Options struct {
	Workers        int    // 0 = runtime.GOMAXPROCS(0)
	WorkDir        string // where evaluation artifacts are written
	OutDir         string // where improving artifacts are copied; empty disables copies
	ArtifactExt    string // default ".csv"
	MaxEvaluations int    // 0 = until shutdown
	Backoff        utils.BackoffStrategy
	NewArtifactID  func(worker int) string
	Store          storage.Store
	RunID          string
	Metrics        *metrics.Recorder
	EvalTimeout    time.Duration
	Convergence    ConvergenceStrategy // nil = never stop early
}

// Driver runs the worker pool over a shared State
type Driver struct {
	state    *State
	eval     Evaluator
	opts     Options
	best     *BestTracker
	shutdown *Shutdown

	// serialises best-result journaling so the store never regresses
	journalMu sync.Mutex

	launched    atomic.Int64
	evaluations atomic.Int64
	failures    atomic.Int64
	busy        atomic.Int32
	startedAt   atomic.Pointer[time.Time]
}

// NewDriver creates a driver. The state should already be seeded.
func NewDriver(state *State, eval Evaluator, opts Options) (*Driver, error) {
	if state == nil || eval == nil {
		return nil, fmt.Errorf("state and evaluator are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.ArtifactExt == "" {
		opts.ArtifactExt = ".csv"
	}
	if opts.MaxEvaluations < 0 {
		return nil, fmt.Errorf("max evaluations cannot be negative")
	}
	if opts.Backoff == nil {
		opts.Backoff = utils.NoBackoff{}
	}
	if opts.NewArtifactID == nil {
		opts.NewArtifactID = utils.NewArtifactIDs(true).Next
	}
	if opts.RunID == "" {
		opts.RunID = utils.GenerateRunID()
	}
	return &Driver{
		state:    state,
		eval:     eval,
		opts:     opts,
		best:     NewBestTracker(),
		shutdown: NewShutdown(),
	}, nil
}

// State returns the shared optimizer state
func (d *Driver) State() *State {
	return d.state
}

// Best returns the best result so far
func (d *Driver) Best() (models.BestResult, bool) {
	return d.best.Load()
}

// Trials returns a copy of the recorded trials in insertion order
func (d *Driver) Trials() []models.Trial {
	return d.state.Trials()
}

// Shutdown asks every worker to stop after its current iteration
func (d *Driver) Shutdown() {
	if d.shutdown.Request() {
		logger.Info("shutdown requested, draining workers", "busy", d.busy.Load())
	}
}

// ShuttingDown reports whether shutdown has been requested
func (d *Driver) ShuttingDown() bool {
	return d.shutdown.Requested()
}

// Done is closed once shutdown has been requested
func (d *Driver) Done() <-chan struct{} {
	return d.shutdown.Done()
}

// Snapshot returns a point-in-time view of the search
func (d *Driver) Snapshot() models.Snapshot {
	snap := models.Snapshot{
		RunID:        d.opts.RunID,
		Workers:      d.opts.Workers,
		BusyWorkers:  int(d.busy.Load()),
		Trials:       d.state.Len(),
		Evaluations:  d.evaluations.Load(),
		Failures:     d.failures.Load(),
		ShuttingDown: d.shutdown.Requested(),
	}
	if started := d.startedAt.Load(); started != nil {
		snap.StartedAt = *started
	}
	if best, ok := d.best.Load(); ok {
		snap.Best = &best
	}
	return snap
}

// Resume loads journaled trials and the best result of the run from the store
func (d *Driver) Resume(ctx context.Context) (int, error) {
	if d.opts.Store == nil {
		return 0, nil
	}
	trials, err := d.opts.Store.ListTrials(ctx, d.opts.RunID)
	if err != nil {
		return 0, fmt.Errorf("failed to list trials for %s: %w", d.opts.RunID, err)
	}
	restored := d.state.Restore(trials)
	for _, t := range trials {
		d.best.Offer(t.Fitness, t.Artifact, t.Assignment)
	}
	best, ok, err := d.opts.Store.GetBest(ctx, d.opts.RunID)
	if err != nil {
		return restored, fmt.Errorf("failed to load best result for %s: %w", d.opts.RunID, err)
	}
	if ok {
		d.best.Restore(best)
	}
	d.opts.Metrics.SetTrials(d.state.Len())
	if f := d.best.Fitness(); !math.IsInf(f, 1) {
		d.opts.Metrics.SetBestFitness(f)
	}
	return restored, nil
}

// Run starts the workers and blocks until all of them have exited.
// Cancelling ctx requests shutdown; evaluations already running finish.
// The only error returned is a fatal one (see IsFatal).
func (d *Driver) Run(ctx context.Context) error {
	now := time.Now()
	d.startedAt.Store(&now)

	if err := os.MkdirAll(d.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir %s: %w", d.opts.WorkDir, err)
	}
	if d.opts.OutDir != "" {
		if err := os.MkdirAll(d.opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir %s: %w", d.opts.OutDir, err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.Shutdown()
		case <-stop:
		}
	}()

	// in-flight evaluations are not cancelled by an interrupt
	evalCtx := context.WithoutCancel(ctx)

	logger.Info("starting search", "run_id", d.opts.RunID, "workers", d.opts.Workers,
		"parameters", d.state.Names(), "max_evaluations", d.opts.MaxEvaluations)

	p := pool.New().WithErrors().WithMaxGoroutines(d.opts.Workers)
	for w := 0; w < d.opts.Workers; w++ {
		p.Go(func() error {
			return d.worker(evalCtx, w)
		})
	}
	err := p.Wait()

	logger.Info("search stopped", "run_id", d.opts.RunID, "trials", d.state.Len(),
		"evaluations", d.evaluations.Load(), "failures", d.failures.Load(), "best_fitness", d.best.Fitness())
	return err
}

func (d *Driver) worker(ctx context.Context, id int) error {
	log := logger.With("worker", id)
	consecutive := 0
	for !d.shutdown.Requested() {
		if !d.claim() {
			return nil
		}
		ok, err := d.iterate(ctx, id, log)
		if err != nil {
			log.Error("fatal optimizer error, aborting search", "error", err)
			d.Shutdown()
			return err
		}
		if ok {
			consecutive = 0
			continue
		}
		if !utils.Pause(d.opts.Backoff, consecutive, d.shutdown.Done()) {
			return nil
		}
		consecutive++
	}
	return nil
}

// claim reserves one evaluation against MaxEvaluations
func (d *Driver) claim() bool {
	if d.opts.MaxEvaluations <= 0 {
		return true
	}
	n := d.launched.Add(1)
	if n >= int64(d.opts.MaxEvaluations) {
		d.Shutdown()
	}
	return n <= int64(d.opts.MaxEvaluations)
}

// iterate runs one ask/evaluate/tell cycle. ok reports a recorded trial;
// a non-nil error is fatal.
func (d *Driver) iterate(ctx context.Context, worker int, log *slog.Logger) (bool, error) {
	artifact := d.opts.NewArtifactID(worker)
	path := filepath.Join(d.opts.WorkDir, artifact+d.opts.ArtifactExt)

	assignment := d.state.Ask()

	d.busy.Add(1)
	d.opts.Metrics.WorkerStarted()
	start := time.Now()
	fitness, err := d.evaluate(ctx, assignment, path)
	if err == nil && math.IsNaN(fitness) {
		err = &TraceError{Artifact: path, Err: errors.New("fitness is NaN")}
	}
	elapsed := time.Since(start)
	d.busy.Add(-1)
	d.opts.Metrics.WorkerFinished()
	d.evaluations.Add(1)

	if err != nil {
		d.failures.Add(1)
		d.handleFailure(log, path, assignment, elapsed, err)
		return false, nil
	}

	trial, err := d.state.Tell(assignment, fitness, worker, artifact)
	if err != nil {
		return false, err
	}
	d.opts.Metrics.ObserveEvaluation(metrics.ResultSuccess, elapsed)
	d.opts.Metrics.SetTrials(d.state.Len())

	log.Info("trial recorded", "seq", trial.Seq, "params", assignment.String(),
		"fitness", fitness, "elapsed", elapsed.Round(time.Millisecond))

	d.journal(log, trial)

	if rec, improved := d.best.Offer(fitness, artifact, assignment); improved {
		d.opts.Metrics.SetBestFitness(fitness)
		log.Info("new best fitness", "fitness", fitness, "params", assignment.String(), "artifact", path)
		d.persistBest(log, rec, path)
	}

	d.checkConvergence(log)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to delete artifact", "artifact", path, "error", err)
	}
	return true, nil
}

// checkConvergence requests shutdown once the configured strategy reports
// the search has converged
func (d *Driver) checkConvergence(log *slog.Logger) {
	if d.opts.Convergence == nil || d.shutdown.Requested() {
		return
	}
	if converged, reason := d.opts.Convergence.CheckConvergence(d.state.Trials()); converged {
		log.Info("search converged", "strategy", d.opts.Convergence.Name(), "reason", reason)
		d.Shutdown()
	}
}

func (d *Driver) evaluate(ctx context.Context, a models.Assignment, path string) (float64, error) {
	if d.opts.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.EvalTimeout)
		defer cancel()
	}
	return d.eval.Evaluate(ctx, a, path)
}

func (d *Driver) handleFailure(log *slog.Logger, path string, a models.Assignment, elapsed time.Duration, err error) {
	var traceErr *TraceError
	if errors.As(err, &traceErr) {
		d.opts.Metrics.ObserveEvaluation(metrics.ResultTraceFailure, elapsed)
		log.Error("evaluation trace rejected, artifact kept for inspection",
			"artifact", path, "params", a.String(), "error", err)
		return
	}

	d.opts.Metrics.ObserveEvaluation(metrics.ResultLaunchFailure, elapsed)
	log.Error("evaluation failed to launch", "artifact", path, "params", a.String(), "error", err)
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		log.Warn("failed to delete artifact", "artifact", path, "error", rmErr)
	}
}

func (d *Driver) journal(log *slog.Logger, trial models.Trial) {
	if d.opts.Store == nil {
		return
	}
	if err := d.opts.Store.SaveTrial(context.Background(), d.opts.RunID, trial); err != nil {
		log.Warn("failed to journal trial", "seq", trial.Seq, "error", err)
	}
}

// persistBest copies the improving artifact to <out>/<fitness><ext>.
// Failures are warnings only.
func (d *Driver) persistBest(log *slog.Logger, rec *models.BestResult, path string) {
	persisted := ""
	if d.opts.OutDir != "" {
		dst := filepath.Join(d.opts.OutDir, formatFitness(rec.Fitness)+d.opts.ArtifactExt)
		if err := copyFile(path, dst); err != nil {
			log.Warn("failed to persist best artifact", "artifact", path, "destination", dst, "error", err)
		} else {
			persisted = dst
			d.best.MarkPersisted(rec, dst)
		}
	}

	if d.opts.Store == nil {
		return
	}
	best := *rec
	best.Persisted = persisted

	d.journalMu.Lock()
	defer d.journalMu.Unlock()
	if d.best.Fitness() < best.Fitness {
		return
	}
	if err := d.opts.Store.SaveBest(context.Background(), d.opts.RunID, best); err != nil {
		log.Warn("failed to journal best result", "fitness", best.Fitness, "error", err)
	}
}

// formatFitness renders a fitness the way persisted artifacts are named
func formatFitness(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
