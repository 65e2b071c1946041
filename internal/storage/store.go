// Package storage journals the trials and best result of a search so a run
// can be inspected afterwards or resumed with a warm optimizer.
package storage

import (
	"context"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

// Store defines persistence operations for a search run.
type Store interface {
	Init(ctx context.Context) error
	SaveTrial(ctx context.Context, runID string, trial models.Trial) error
	ListTrials(ctx context.Context, runID string) ([]models.Trial, error)
	SaveBest(ctx context.Context, runID string, best models.BestResult) error
	GetBest(ctx context.Context, runID string) (models.BestResult, bool, error)
}
