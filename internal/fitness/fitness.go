// Package fitness scores a swarm trace. Lower is better.
package fitness

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Trace is the position data a Scorer needs
type Trace interface {
	// Entities returns the entity ids in ascending order
	Entities() []int
	Duration() float64
	PositionAt(t float64, entity int) (r3.Vec, bool)
}

// Weights are the scoring policy constants
type Weights struct {
	TargetDistance     float64
	DistanceWeight     float64
	StableTimeWeight   float64
	VelocityWeight     float64
	StabilityThreshold float64
	TimeStep           float64
	MaxDuration        float64 // longest trace duration accepted, 0 = unbounded
}

// DefaultWeights returns the swarm formation scoring weights
func DefaultWeights() Weights {
	return Weights{
		TargetDistance:     3.0,
		DistanceWeight:     200,
		StableTimeWeight:   1.0,
		VelocityWeight:     250,
		StabilityThreshold: 30,
		TimeStep:           0.1,
		MaxDuration:        3600,
	}
}

// Breakdown is a fitness value and the terms it was built from
type Breakdown struct {
	AverageDistance float64
	AverageSpeed    float64
	StableTime      float64
	DistanceCost    float64
	StableTimeCost  float64
	VelocityCost    float64
	Fitness         float64
	Steps           int
}

// InvalidTraceError indicates a trace that cannot be scored
type InvalidTraceError struct {
	Reason string
}

func (e *InvalidTraceError) Error() string {
	return "invalid trace: " + e.Reason
}

// Scorer computes fitness from a trace. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	w Weights
}

// NewScorer creates a scorer
func NewScorer(w Weights) (*Scorer, error) {
	if !(w.TimeStep > 0) {
		return nil, fmt.Errorf("time step must be positive, got %g", w.TimeStep)
	}
	if w.MaxDuration < 0 {
		return nil, fmt.Errorf("max duration cannot be negative, got %g", w.MaxDuration)
	}
	return &Scorer{w: w}, nil
}

type lastSeen struct {
	pos  r3.Vec
	time float64
}

// Score walks the trace from 0 to its duration in fixed steps.
//
// At every step it collects the distance of each entity to the reference
// entity (the lowest id) and the speed of each entity since the previous
// step it was seen at, 0 on a step where no entity had been seen before.
// The stability metric MAD(d) * mean(d) * 100 opens a streak when it drops
// below the threshold and closes it when it rises to or above it; the
// stable time is the start of the last open streak, or the
// full duration when none is open at the end.
func (s *Scorer) Score(tr Trace) (Breakdown, error) {
	entities := tr.Entities()
	if len(entities) == 0 {
		return Breakdown{}, &InvalidTraceError{Reason: "no entities"}
	}
	duration := tr.Duration()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return Breakdown{}, &InvalidTraceError{Reason: fmt.Sprintf("duration %g", duration)}
	}
	if s.w.MaxDuration > 0 && duration > s.w.MaxDuration {
		return Breakdown{}, &InvalidTraceError{Reason: fmt.Sprintf("duration %g exceeds the %g limit", duration, s.w.MaxDuration)}
	}

	reference := entities[0]
	for _, id := range entities[1:] {
		if id < reference {
			reference = id
		}
	}

	steps := int(math.Floor(duration/s.w.TimeStep+1e-9)) + 1
	last := make(map[int]lastSeen, len(entities))

	var (
		meanDistances []float64
		meanSpeeds    []float64
		streakStart   = math.NaN()
		distances     = make([]float64, 0, len(entities))
		speeds        = make([]float64, 0, len(entities))
	)

	for i := 0; i < steps; i++ {
		t := float64(i) * s.w.TimeStep
		distances = distances[:0]
		speeds = speeds[:0]

		refPos, refKnown := tr.PositionAt(t, reference)
		for _, id := range entities {
			pos, ok := tr.PositionAt(t, id)
			if !ok {
				continue
			}
			if prev, seen := last[id]; seen {
				speeds = append(speeds, r3.Norm(r3.Sub(pos, prev.pos))/(t-prev.time))
			}
			last[id] = lastSeen{pos: pos, time: t}
			if id != reference && refKnown {
				distances = append(distances, r3.Norm(r3.Sub(pos, refPos)))
			}
		}

		if len(distances) > 0 {
			mean := utils.Mean(distances)
			metric := utils.MeanAbsDev(distances) * mean * 100
			if math.IsNaN(streakStart) {
				if metric < s.w.StabilityThreshold {
					streakStart = t
				}
			} else if metric >= s.w.StabilityThreshold {
				streakStart = math.NaN()
			}
			meanDistances = append(meanDistances, mean)
		}
		switch {
		case len(speeds) > 0:
			meanSpeeds = append(meanSpeeds, utils.Mean(speeds))
		case len(distances) > 0:
			// first sighting, nothing has moved yet
			meanSpeeds = append(meanSpeeds, 0)
		}
	}

	if len(meanDistances) == 0 {
		return Breakdown{}, &InvalidTraceError{Reason: "no timestep with both the reference and another entity"}
	}

	b := Breakdown{
		AverageDistance: utils.Mean(meanDistances),
		AverageSpeed:    utils.Mean(meanSpeeds),
		StableTime:      duration,
		Steps:           steps,
	}
	if !math.IsNaN(streakStart) {
		b.StableTime = streakStart
	}
	b.DistanceCost = s.w.DistanceWeight * math.Abs(s.w.TargetDistance-b.AverageDistance)
	b.StableTimeCost = s.w.StableTimeWeight * b.StableTime
	b.VelocityCost = s.w.VelocityWeight * b.AverageSpeed
	b.Fitness = b.DistanceCost + b.StableTimeCost + b.VelocityCost
	return b, nil
}
