package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Assignment maps parameter names to the values proposed for one evaluation
type Assignment map[string]float64

// Clone returns an independent copy of the assignment
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// HasExactly reports whether the assignment names exactly the given parameters
func (a Assignment) HasExactly(names []string) bool {
	if len(a) != len(names) {
		return false
	}
	for _, name := range names {
		if _, ok := a[name]; !ok {
			return false
		}
	}
	return true
}

// String renders the assignment with sorted keys, e.g. "a=1.5 r=2"
func (a Assignment) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, a[k]))
	}
	return strings.Join(parts, " ")
}

// Trial is one completed (assignment, fitness) observation. Seq is the
// 1-based insertion order within the run.
type Trial struct {
	Seq        int        `json:"seq"`
	Assignment Assignment `json:"assignment"`
	Fitness    float64    `json:"fitness"`
	Worker     int        `json:"worker"`
	Artifact   string     `json:"artifact,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// BestResult is the lowest fitness seen so far and the artifact that produced it
type BestResult struct {
	Fitness    float64    `json:"fitness"`
	Artifact   string     `json:"artifact"`
	Assignment Assignment `json:"assignment,omitempty"`
	Persisted  string     `json:"persisted,omitempty"`
}

// Snapshot is a point-in-time view of a running search
type Snapshot struct {
	RunID        string      `json:"run_id"`
	Workers      int         `json:"workers"`
	BusyWorkers  int         `json:"busy_workers"`
	Trials       int         `json:"trials"`
	Evaluations  int64       `json:"evaluations"`
	Failures     int64       `json:"failures"`
	Best         *BestResult `json:"best,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	ShuttingDown bool        `json:"shutting_down"`
}

// Summary is reported once the search has stopped
type Summary struct {
	Snapshot
	EndedAt    time.Time `json:"ended_at"`
	Duration   string    `json:"duration"`
	Heatmap    string    `json:"heatmap,omitempty"`
	MinFitness float64   `json:"min_fitness"`
	MaxFitness float64   `json:"max_fitness"`
	Error      string    `json:"error,omitempty"`
}
