// Package aggregate reduces the trials of a finished search to a coarse
// grid over two parameters for visualization.
package aggregate

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
)

// ErrNoTrials is returned when nothing can be aggregated
var ErrNoTrials = errors.New("no trials with a finite fitness")

// Axis is a named parameter domain
type Axis struct {
	Name string
	Low  float64
	High float64
}

// Grid is the number of cells along each axis
type Grid struct {
	Width  int
	Height int
}

// Cell is one occupied grid cell
type Cell struct {
	X, Y    int     // grid coordinates
	ValueX  float64 // parameter values of the first trial in the cell
	ValueY  float64
	Average float64 // mean fitness of the trials in the cell
	Count   int
	Color   color.RGBA
}

// Result is the aggregated grid
type Result struct {
	X, Y       Axis
	Grid       Grid
	Cells      []Cell // sorted by (Y, X)
	MinFitness float64
	MaxFitness float64
	Trials     int
}

type bucket struct {
	cell Cell
	sum  float64
}

// Build bins trials on the x and y parameters and averages fitness per cell.
// Trials that do not name both parameters or have a NaN fitness are ignored.
func Build(trials []models.Trial, x, y Axis, grid Grid) (Result, error) {
	if grid.Width <= 0 || grid.Height <= 0 {
		return Result{}, fmt.Errorf("invalid grid %dx%d", grid.Width, grid.Height)
	}
	if !(x.Low < x.High) || !(y.Low < y.High) {
		return Result{}, fmt.Errorf("invalid axis domains %s=[%g, %g] %s=[%g, %g]", x.Name, x.Low, x.High, y.Name, y.Low, y.High)
	}

	buckets := make(map[[2]int]*bucket)
	fitnesses := make([]float64, 0, len(trials))
	used := 0
	for _, t := range trials {
		vx, okx := t.Assignment[x.Name]
		vy, oky := t.Assignment[y.Name]
		if !okx || !oky || math.IsNaN(t.Fitness) {
			continue
		}
		used++
		fitnesses = append(fitnesses, t.Fitness)

		key := [2]int{cellIndex(x, vx, grid.Width), cellIndex(y, vy, grid.Height)}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{cell: Cell{X: key[0], Y: key[1], ValueX: vx, ValueY: vy}}
			buckets[key] = b
		}
		b.sum += t.Fitness
		b.cell.Count++
	}

	min, max, ok := utils.MinMax(fitnesses)
	if !ok {
		return Result{}, ErrNoTrials
	}

	res := Result{X: x, Y: y, Grid: grid, MinFitness: min, MaxFitness: max, Trials: used}
	for _, b := range buckets {
		c := b.cell
		c.Average = b.sum / float64(c.Count)
		c.Color = Gradient(min, max, c.Average)
		res.Cells = append(res.Cells, c)
	}
	sort.Slice(res.Cells, func(i, j int) bool {
		if res.Cells[i].Y != res.Cells[j].Y {
			return res.Cells[i].Y < res.Cells[j].Y
		}
		return res.Cells[i].X < res.Cells[j].X
	})
	return res, nil
}

func cellIndex(a Axis, v float64, n int) int {
	idx := int(math.Floor(utils.MapRange(a.Low, a.High, v, 0, float64(n))))
	return utils.Clamp(idx, 0, n-1)
}

// Gradient maps a fitness between min (best) and max (worst) onto the
// cold-to-hot palette: the best cells are green-blue, the worst red.
func Gradient(min, max, fitness float64) color.RGBA {
	good := utils.ClampFloat64(utils.MapRange(min, max, fitness, 1, 0), 0, 1)
	return color.RGBA{
		R: channel(utils.MapRange(0, 1, good, 255, 0)),
		G: channel(utils.MapRange(0, 1, good, 0, 255)),
		B: channel(utils.MapRange(0, 1, good, 100, 200)),
		A: 255,
	}
}

func channel(v float64) uint8 {
	return uint8(utils.ClampFloat64(math.Trunc(v), 0, 255))
}
