package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

var ErrNonFiniteFitness = errors.New("fitness is not finite")

func EncodeTrial(t models.Trial) ([]byte, error) {
	if math.IsNaN(t.Fitness) || math.IsInf(t.Fitness, 0) {
		return nil, fmt.Errorf("trial %d: %w", t.Seq, ErrNonFiniteFitness)
	}
	return json.Marshal(t)
}

func DecodeTrial(data []byte) (models.Trial, error) {
	var trial models.Trial
	if err := json.Unmarshal(data, &trial); err != nil {
		return models.Trial{}, err
	}
	return trial, nil
}

func EncodeBest(b models.BestResult) ([]byte, error) {
	if math.IsNaN(b.Fitness) || math.IsInf(b.Fitness, 0) {
		return nil, fmt.Errorf("best result: %w", ErrNonFiniteFitness)
	}
	return json.Marshal(b)
}

func DecodeBest(data []byte) (models.BestResult, error) {
	var best models.BestResult
	if err := json.Unmarshal(data, &best); err != nil {
		return models.BestResult{}, err
	}
	return best, nil
}
