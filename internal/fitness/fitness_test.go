package fitness

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/paramsearch/internal/trace"
	"gonum.org/v1/gonum/spatial/r3"
)

type funcTrace struct {
	ids      []int
	duration float64
	pos      func(t float64, id int) (r3.Vec, bool)
}

func (f *funcTrace) Entities() []int   { return f.ids }
func (f *funcTrace) Duration() float64 { return f.duration }
func (f *funcTrace) PositionAt(t float64, id int) (r3.Vec, bool) {
	return f.pos(t, id)
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newDefaultScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultWeights())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func TestNewScorerRejectsBadStep(t *testing.T) {
	w := DefaultWeights()
	w.TimeStep = 0
	if _, err := NewScorer(w); err == nil {
		t.Fatal("expected error for zero time step")
	}
}

func TestConstantTraceAtTargetDistance(t *testing.T) {
	tr := &funcTrace{
		ids:      []int{3, 1, 2},
		duration: 10,
		pos: func(_ float64, id int) (r3.Vec, bool) {
			switch id {
			case 1:
				return r3.Vec{X: 5, Y: 5}, true
			case 2:
				return r3.Vec{X: 8, Y: 5}, true
			default:
				return r3.Vec{X: 5, Y: 5, Z: 3}, true
			}
		},
	}

	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !near(b.DistanceCost, 0) || !near(b.VelocityCost, 0) {
		t.Fatalf("expected zero distance and velocity cost, got %+v", b)
	}
	// the stable time is when the last streak opened, not how long it lasted.
	// The metric is 0 from the first step, so the streak opens at t=0 and
	// never closes.
	if b.StableTime != 0 {
		t.Fatalf("expected stable time 0, got %v", b.StableTime)
	}
	if b.Steps != 101 {
		t.Fatalf("expected 101 steps over [0, 10], got %d", b.Steps)
	}
	if !near(b.Fitness, 0) {
		t.Fatalf("expected fitness 0, got %v", b.Fitness)
	}
}

// crossingTrace keeps both followers 3 away from the leader except during
// [1, 2) where they sit at 1 and 5, pushing the metric above the threshold.
func crossingTrace() *funcTrace {
	return &funcTrace{
		ids:      []int{0, 1, 2},
		duration: 3,
		pos: func(t float64, id int) (r3.Vec, bool) {
			unstable := t >= 1-1e-9 && t < 2-1e-9
			switch id {
			case 1:
				if unstable {
					return r3.Vec{X: 1}, true
				}
				return r3.Vec{X: 3}, true
			case 2:
				if unstable {
					return r3.Vec{Y: 5}, true
				}
				return r3.Vec{Y: 3}, true
			default:
				return r3.Vec{}, true
			}
		},
	}
}

func TestCrossingThresholdReportsLastStreakStart(t *testing.T) {
	b, err := newDefaultScorer(t).Score(crossingTrace())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !near(b.StableTime, 2) {
		t.Fatalf("expected stable time 2 (last streak start), got %v", b.StableTime)
	}
	if !near(b.AverageDistance, 3) {
		t.Fatalf("expected average distance 3, got %v", b.AverageDistance)
	}
	// two jumps of 2 units over 0.1s for two of three entities, averaged
	// over all 31 steps including the first one at speed 0
	wantSpeed := 2 * (40.0 / 3) / 31
	if !near(b.AverageSpeed, wantSpeed) {
		t.Fatalf("expected average speed %v, got %v", wantSpeed, b.AverageSpeed)
	}
	if !near(b.Fitness, 2+250*wantSpeed) {
		t.Fatalf("unexpected fitness %v", b.Fitness)
	}
}

func TestNeverStableFallsBackToDuration(t *testing.T) {
	tr := &funcTrace{
		ids:      []int{0, 1, 2},
		duration: 2,
		pos: func(_ float64, id int) (r3.Vec, bool) {
			return r3.Vec{X: float64(id * id)}, true
		},
	}
	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if b.StableTime != 2 {
		t.Fatalf("expected stable time to fall back to duration, got %v", b.StableTime)
	}
	// distances 1 and 4: mean 2.5
	if !near(b.DistanceCost, 200*0.5) {
		t.Fatalf("unexpected distance cost %v", b.DistanceCost)
	}
}

func TestConstantVelocity(t *testing.T) {
	tr := &funcTrace{
		ids:      []int{0, 1},
		duration: 5,
		pos: func(t float64, id int) (r3.Vec, bool) {
			if id == 0 {
				return r3.Vec{}, true
			}
			return r3.Vec{X: 3 + t}, true
		},
	}
	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// the leader is still and the follower moves at 1 unit/s: 50 steps at
	// 0.5 and the first step at 0
	if want := 50 * 0.5 / 51; !near(b.AverageSpeed, want) {
		t.Fatalf("expected average speed %v, got %v", want, b.AverageSpeed)
	}
}

func TestFirstStepCountsAsStill(t *testing.T) {
	tr := &funcTrace{
		ids:      []int{0, 1},
		duration: 1,
		pos: func(t float64, id int) (r3.Vec, bool) {
			if id == 0 {
				return r3.Vec{}, true
			}
			return r3.Vec{X: 3 + t}, true
		},
	}
	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if b.Steps != 11 {
		t.Fatalf("expected 11 steps, got %d", b.Steps)
	}
	if want := 10 * 0.5 / 11; !near(b.AverageSpeed, want) {
		t.Fatalf("expected average speed %v, got %v", want, b.AverageSpeed)
	}
	if !near(b.VelocityCost, 250*10*0.5/11) {
		t.Fatalf("unexpected velocity cost %v", b.VelocityCost)
	}
}

func TestDurationLimit(t *testing.T) {
	still := func(_ float64, id int) (r3.Vec, bool) { return r3.Vec{X: float64(id)}, true }

	w := DefaultWeights()
	w.MaxDuration = 5
	s, err := NewScorer(w)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	if _, err := s.Score(&funcTrace{ids: []int{0, 1}, duration: 5, pos: still}); err != nil {
		t.Fatalf("duration at the limit must be scored: %v", err)
	}
	for _, d := range []float64{5.5, 1e12, math.Inf(1)} {
		_, err := s.Score(&funcTrace{ids: []int{0, 1}, duration: d, pos: still})
		var ite *InvalidTraceError
		if !errors.As(err, &ite) {
			t.Fatalf("duration %g: expected InvalidTraceError, got %v", d, err)
		}
	}

	w.MaxDuration = -1
	if _, err := NewScorer(w); err == nil {
		t.Fatal("expected error for a negative duration limit")
	}
}

func TestMissingSamplesAreSkipped(t *testing.T) {
	tr := &funcTrace{
		ids:      []int{0, 1},
		duration: 1,
		pos: func(t float64, id int) (r3.Vec, bool) {
			if id == 0 && t < 0.5 {
				return r3.Vec{}, false
			}
			return r3.Vec{X: 3}, true
		},
	}
	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.IsNaN(b.Fitness) {
		t.Fatal("fitness must not be NaN when the reference is briefly unknown")
	}
	if b.StableTime != 0.5 {
		t.Fatalf("expected the streak to open when the reference appears at 0.5, got %v", b.StableTime)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := newDefaultScorer(t)
	first, err := s.Score(crossingTrace())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, err := s.Score(crossingTrace())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if first != second {
		t.Fatalf("scores differ: %+v vs %+v", first, second)
	}
}

func TestCustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.TargetDistance = 5
	w.DistanceWeight = 1
	w.StableTimeWeight = 0
	w.VelocityWeight = 0
	s, err := NewScorer(w)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	b, err := s.Score(crossingTrace())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !near(b.Fitness, 2) {
		t.Fatalf("expected |5-3| = 2, got %v", b.Fitness)
	}
}

func TestInvalidTraces(t *testing.T) {
	s := newDefaultScorer(t)
	tests := []struct {
		name string
		tr   Trace
	}{
		{"no entities", &funcTrace{duration: 1, pos: func(float64, int) (r3.Vec, bool) { return r3.Vec{}, true }}},
		{"single entity", &funcTrace{ids: []int{4}, duration: 1, pos: func(float64, int) (r3.Vec, bool) { return r3.Vec{}, true }}},
		{"negative duration", &funcTrace{ids: []int{0, 1}, duration: -1, pos: func(float64, int) (r3.Vec, bool) { return r3.Vec{}, true }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Score(tt.tr)
			var ite *InvalidTraceError
			if !errors.As(err, &ite) {
				t.Fatalf("expected InvalidTraceError, got %v", err)
			}
		})
	}
}

func TestScoreParsedTrace(t *testing.T) {
	csv := "time,node,x,y\n0,7,0,0\n0,9,3,0\n0,8,0,3\nduration,1\n"
	tr, err := trace.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := newDefaultScorer(t).Score(tr)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !near(b.Fitness, 0) || b.Steps != 11 {
		t.Fatalf("expected a perfect score over 11 steps, got %+v", b)
	}
}
