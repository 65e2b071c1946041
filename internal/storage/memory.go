package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	trials      map[string]map[int]models.Trial
	best        map[string]models.BestResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.trials = make(map[string]map[int]models.Trial)
	s.best = make(map[string]models.BestResult)
	return nil
}

func (s *MemoryStore) SaveTrial(_ context.Context, runID string, trial models.Trial) error {
	// round trip through the codec so memory and sqlite reject the same records
	payload, err := EncodeTrial(trial)
	if err != nil {
		return err
	}
	stored, err := DecodeTrial(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	run, ok := s.trials[runID]
	if !ok {
		run = make(map[int]models.Trial)
		s.trials[runID] = run
	}
	run[trial.Seq] = stored
	return nil
}

func (s *MemoryStore) ListTrials(_ context.Context, runID string) ([]models.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errors.New("store is not initialized")
	}
	run := s.trials[runID]
	out := make([]models.Trial, 0, len(run))
	for _, trial := range run {
		out = append(out, trial)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) SaveBest(_ context.Context, runID string, best models.BestResult) error {
	if _, err := EncodeBest(best); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	best.Assignment = best.Assignment.Clone()
	s.best[runID] = best
	return nil
}

func (s *MemoryStore) GetBest(_ context.Context, runID string) (models.BestResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return models.BestResult{}, false, errors.New("store is not initialized")
	}
	best, ok := s.best[runID]
	return best, ok, nil
}
