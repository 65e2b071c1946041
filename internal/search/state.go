package search

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

// Model is a one-dimensional sequential optimizer
type Model interface {
	Propose() float64
	Observe(value, fitness float64) error
}

// Parameter is one tunable dimension and the model that proposes its values
type Parameter struct {
	Name  string
	Low   float64
	High  float64
	model Model
}

// NewParameter creates a parameter over [low, high]
func NewParameter(name string, low, high float64, model Model) *Parameter {
	return &Parameter{Name: name, Low: low, High: high, model: model}
}

// Contains reports whether v lies in the parameter's domain
func (p *Parameter) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= p.Low && v <= p.High
}

// Seed records a default observation, typically with a deliberately bad
// sentinel fitness, so early proposals cluster near value.
func (p *Parameter) Seed(value, sentinel float64) error {
	return p.observe(value, sentinel)
}

func (p *Parameter) observe(value, fitness float64) error {
	if !p.Contains(value) {
		return &DomainError{Parameter: p.Name, Value: value, Low: p.Low, High: p.High, Err: ErrOutOfDomain}
	}
	if err := p.model.Observe(value, fitness); err != nil {
		return &DomainError{Parameter: p.Name, Value: value, Low: p.Low, High: p.High, Err: err}
	}
	return nil
}

// State is the shared optimizer state: every parameter model plus the
// append-only trial list. One mutex guards all of it.
type State struct {
	mu      sync.Mutex
	params  []*Parameter
	names   []string
	trials  []models.Trial
	lastSeq int
}

// NewState creates the shared state. Parameter names must be unique and non-empty.
func NewState(params []*Parameter) (*State, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("at least one parameter is required")
	}
	seen := make(map[string]bool, len(params))
	names := make([]string, 0, len(params))
	for _, p := range params {
		if p == nil || p.model == nil {
			return nil, fmt.Errorf("parameter without a model")
		}
		if p.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		if !(p.Low < p.High) {
			return nil, fmt.Errorf("parameter %s: empty domain [%g, %g]", p.Name, p.Low, p.High)
		}
		seen[p.Name] = true
		names = append(names, p.Name)
	}
	return &State{params: params, names: names}, nil
}

// Names returns the parameter names in declaration order
func (s *State) Names() []string {
	return append([]string(nil), s.names...)
}

// Ask draws one value from every parameter under a single lock acquisition
func (s *State) Ask() models.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := make(models.Assignment, len(s.params))
	for _, p := range s.params {
		a[p.Name] = p.model.Propose()
	}
	return a
}

// Tell observes fitness for every parameter of a and appends the trial.
// All values are checked before any model is updated so a rejected
// assignment leaves every model untouched.
func (s *State) Tell(a models.Assignment, fitness float64, worker int, artifact string) (models.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(a); err != nil {
		return models.Trial{}, err
	}
	for _, p := range s.params {
		if err := p.observe(a[p.Name], fitness); err != nil {
			return models.Trial{}, err
		}
	}
	s.lastSeq++
	trial := models.Trial{
		Seq:        s.lastSeq,
		Assignment: a.Clone(),
		Fitness:    fitness,
		Worker:     worker,
		Artifact:   artifact,
		RecordedAt: time.Now(),
	}
	s.trials = append(s.trials, trial)
	return trial, nil
}

func (s *State) check(a models.Assignment) error {
	if !a.HasExactly(s.names) {
		return fmt.Errorf("assignment %v does not name exactly %v", a, s.names)
	}
	for _, p := range s.params {
		if v := a[p.Name]; !p.Contains(v) {
			return &DomainError{Parameter: p.Name, Value: v, Low: p.Low, High: p.High, Err: ErrOutOfDomain}
		}
	}
	return nil
}

// Restore replays previously journaled trials into the models and the
// trial list. Trials that do not match the current parameters are skipped.
// Journaled sequence numbers are kept, skipped ones included, and new
// trials continue after the largest. It returns how many trials were
// restored.
func (s *State) Restore(trials []models.Trial) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, t := range trials {
		if t.Seq > s.lastSeq {
			s.lastSeq = t.Seq
		}
		if math.IsNaN(t.Fitness) || s.check(t.Assignment) != nil {
			continue
		}
		for _, p := range s.params {
			// check already validated the domain
			_ = p.model.Observe(t.Assignment[p.Name], t.Fitness)
		}
		if t.Seq <= 0 {
			s.lastSeq++
			t.Seq = s.lastSeq
		}
		t.Assignment = t.Assignment.Clone()
		s.trials = append(s.trials, t)
		restored++
	}
	return restored
}

// Trials returns a copy of the trial list in insertion order
func (s *State) Trials() []models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trial(nil), s.trials...)
}

// Len returns the number of recorded trials
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trials)
}
