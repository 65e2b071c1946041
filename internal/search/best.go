package search

import (
	"math"
	"sync/atomic"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

// BestTracker holds the lowest fitness seen so far. Updates are lock free;
// the stored fitness only ever decreases.
type BestTracker struct {
	p atomic.Pointer[models.BestResult]
}

// NewBestTracker creates a tracker whose initial best is +Inf
func NewBestTracker() *BestTracker {
	b := &BestTracker{}
	b.p.Store(&models.BestResult{Fitness: math.Inf(1)})
	return b
}

// Offer records fitness if it is strictly better than the current best.
// It returns the stored record on success so the caller can persist the
// artifact and later attach the persisted path with MarkPersisted.
func (b *BestTracker) Offer(fitness float64, artifact string, a models.Assignment) (*models.BestResult, bool) {
	if math.IsNaN(fitness) {
		return nil, false
	}
	next := &models.BestResult{Fitness: fitness, Artifact: artifact, Assignment: a.Clone()}
	for {
		cur := b.p.Load()
		if !(fitness < cur.Fitness) {
			return nil, false
		}
		if b.p.CompareAndSwap(cur, next) {
			return next, true
		}
	}
}

// MarkPersisted attaches the persisted artifact path to rec if rec is still the best
func (b *BestTracker) MarkPersisted(rec *models.BestResult, path string) bool {
	updated := *rec
	updated.Persisted = path
	return b.p.CompareAndSwap(rec, &updated)
}

// Restore installs a previously journaled best if it is at least as good as the current one
func (b *BestTracker) Restore(r models.BestResult) {
	if math.IsNaN(r.Fitness) {
		return
	}
	next := r
	next.Assignment = r.Assignment.Clone()
	for {
		cur := b.p.Load()
		if r.Fitness > cur.Fitness {
			return
		}
		if b.p.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Fitness returns the current best fitness (+Inf before any trial)
func (b *BestTracker) Fitness() float64 {
	return b.p.Load().Fitness
}

// Load returns a copy of the current best and whether any trial has been recorded
func (b *BestTracker) Load() (models.BestResult, bool) {
	cur := *b.p.Load()
	return cur, !math.IsInf(cur.Fitness, 1)
}
