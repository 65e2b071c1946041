// Package trace parses the positions file written by the simulator.
//
// Each row is "time,node,x,y[,z]". A leading header row is ignored and a
// row "duration,<seconds>" declares the simulated duration; without it the
// duration is the last timestamp seen.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon absorbs floating point drift when looking up a timestep
const Epsilon = 1e-9

// ErrEmpty is returned for a trace without position rows
var ErrEmpty = errors.New("trace has no position samples")

// Sample is one known position of a node
type Sample struct {
	Time float64
	Pos  r3.Vec
}

// Trace is a per-node position timeline
type Trace struct {
	duration float64
	nodes    []int
	samples  map[int][]Sample
}

// ParseFile parses the positions file at path
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// Parse reads a trace from r
func Parse(r io.Reader) (*Trace, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	t := &Trace{samples: make(map[int][]Sample)}
	declared := -1.0
	last := 0.0
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++

		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(record[0]), "duration") {
			if len(record) < 2 {
				return nil, fmt.Errorf("row %d: duration row without a value", row)
			}
			d, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("row %d: invalid duration %q", row, record[1])
			}
			declared = d
			continue
		}

		s, node, err := parseSample(record)
		if err != nil {
			if row == 1 {
				// header
				continue
			}
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if _, seen := t.samples[node]; !seen {
			t.nodes = append(t.nodes, node)
		}
		t.samples[node] = append(t.samples[node], s)
		if s.Time > last {
			last = s.Time
		}
	}

	if len(t.nodes) == 0 {
		return nil, ErrEmpty
	}
	sort.Ints(t.nodes)
	for _, node := range t.nodes {
		ss := t.samples[node]
		sort.SliceStable(ss, func(i, j int) bool { return ss[i].Time < ss[j].Time })
	}
	t.duration = last
	if declared >= 0 {
		t.duration = declared
	}
	return t, nil
}

func parseSample(record []string) (Sample, int, error) {
	if len(record) < 4 || len(record) > 5 {
		return Sample{}, 0, fmt.Errorf("expected 4 or 5 fields, got %d", len(record))
	}
	vals := make([]float64, 0, 4)
	for i, field := range record {
		if i == 1 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Sample{}, 0, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals = append(vals, v)
	}
	node, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return Sample{}, 0, fmt.Errorf("node id: %w", err)
	}
	if vals[0] < 0 {
		return Sample{}, 0, fmt.Errorf("negative time %g", vals[0])
	}
	s := Sample{Time: vals[0], Pos: r3.Vec{X: vals[1], Y: vals[2]}}
	if len(vals) == 4 {
		s.Pos.Z = vals[3]
	}
	return s, node, nil
}

// Entities returns the node ids in ascending order
func (t *Trace) Entities() []int {
	return append([]int(nil), t.nodes...)
}

// Duration returns the simulated duration in seconds
func (t *Trace) Duration() float64 {
	return t.duration
}

// Samples returns the timeline of one node
func (t *Trace) Samples(node int) []Sample {
	return append([]Sample(nil), t.samples[node]...)
}

// PositionAt returns the latest known position of node at or before time
func (t *Trace) PositionAt(time float64, node int) (r3.Vec, bool) {
	ss := t.samples[node]
	i := sort.Search(len(ss), func(i int) bool { return ss[i].Time > time+Epsilon })
	if i == 0 {
		return r3.Vec{}, false
	}
	return ss[i-1].Pos, true
}
