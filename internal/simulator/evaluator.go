package simulator

import (
	"context"

	"github.com/GoSim-25-26J-441/paramsearch/internal/fitness"
	"github.com/GoSim-25-26J-441/paramsearch/internal/search"
	"github.com/GoSim-25-26J-441/paramsearch/internal/trace"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

// Launcher runs one simulation writing its trace to artifactPath
type Launcher interface {
	Run(ctx context.Context, a models.Assignment, artifactPath string) error
}

// Evaluator runs the simulator, parses the trace and scores it
type Evaluator struct {
	launcher Launcher
	scorer   *fitness.Scorer
}

// NewEvaluator creates an evaluator
func NewEvaluator(launcher Launcher, scorer *fitness.Scorer) *Evaluator {
	return &Evaluator{launcher: launcher, scorer: scorer}
}

// Evaluate implements search.Evaluator
func (e *Evaluator) Evaluate(ctx context.Context, a models.Assignment, artifactPath string) (float64, error) {
	if err := e.launcher.Run(ctx, a, artifactPath); err != nil {
		return 0, &search.LaunchError{Artifact: artifactPath, Err: err}
	}

	tr, err := trace.ParseFile(artifactPath)
	if err != nil {
		return 0, &search.TraceError{Artifact: artifactPath, Err: err}
	}
	b, err := e.scorer.Score(tr)
	if err != nil {
		return 0, &search.TraceError{Artifact: artifactPath, Err: err}
	}

	logger.Info("fitness computed",
		"artifact", artifactPath,
		"params", a.String(),
		"distance_cost", b.DistanceCost,
		"stable_time_cost", b.StableTimeCost,
		"velocity_cost", b.VelocityCost,
		"fitness", b.Fitness,
	)
	return b.Fitness, nil
}
