package experiment

import (
	"errors"
	"fmt"

	"github.com/nvandessel/namsweep/internal/validate"
)

// ErrStop can be returned by a Walk callback to end the walk early without
// reporting an error.
var ErrStop = errors.New("stop walk")

// Assignment is the value one sweep axis takes at a point.
type Assignment struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

// Point is a single simulation run: the base parameters with the sweep
// values of one grid cell applied.
type Point struct {
	Experiment      string `json:"experiment"`
	ExperimentIndex int    `json:"experiment_index"`

	// Index is the position of the run across the whole document.
	Index int `json:"index"`

	// GridIndex is the row-major grid cell, the last axis varying fastest.
	GridIndex int `json:"grid_index"`

	// Repeat counts repetitions of the same grid cell, from 0.
	Repeat int `json:"repeat"`

	// Seed is the base seed plus Index.
	Seed int64 `json:"seed"`

	Assignments []Assignment `json:"assignments"`
	Parameters  Parameters   `json:"parameters"`
}

// Value returns the value a swept path takes at this point.
func (p Point) Value(path string) (float64, bool) {
	for _, a := range p.Assignments {
		if a.Path == path {
			return a.Value, true
		}
	}
	return 0, false
}

// ExpandOptions controls expansion.
type ExpandOptions struct {
	// Seed is added to the run index to derive a per-run seed.
	Seed int64

	// Experiment restricts expansion to one experiment by name. Run indices
	// and seeds stay the same as for a full expansion.
	Experiment string
}

// GridSize returns the number of distinct sweep points: the product of the
// axis lengths, or 1 for an experiment without sweeps.
func (e Experiment) GridSize() int {
	total := 1
	for _, n := range e.Sweeps.Shape() {
		total *= n
	}
	return total
}

// Runs returns GridSize times Repeat.
func (e Experiment) Runs() int {
	return e.GridSize() * max(e.Repeat, 1)
}

// TotalRuns returns the number of runs of all experiments.
func (d *Document) TotalRuns() int {
	total := 0
	for _, e := range d.Experiments {
		total += e.Runs()
	}
	return total
}

// Coordinates splits a grid index into one index per axis.
func (e Experiment) Coordinates(gridIndex int) []int {
	shape := e.Sweeps.Shape()
	coords := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] == 0 {
			continue
		}
		coords[i] = gridIndex % shape[i]
		gridIndex /= shape[i]
	}
	return coords
}

// Walk calls fn for every run of the document in order: experiments in file
// order, grid cells row-major, repeats innermost. Each point's parameters are
// validated after the sweep values are applied; the walk stops at the first
// callback error, and point validation failures are collected and returned
// together. The document is expected to have passed Validate.
func (d *Document) Walk(opts ExpandOptions, fn func(Point) error) error {
	if opts.Experiment != "" {
		if _, _, ok := d.Experiment(opts.Experiment); !ok {
			return fmt.Errorf("experiment %q not found", opts.Experiment)
		}
	}

	v := validate.New()
	index := 0
	for ei, e := range d.Experiments {
		if opts.Experiment != "" && e.Name != opts.Experiment {
			index += e.Runs()
			continue
		}

		values := make([][]float64, len(e.Sweeps))
		for i, axis := range e.Sweeps {
			values[i] = axis.Sweep.Values()
		}

		repeat := max(e.Repeat, 1)
		grid := e.GridSize()
		for g := 0; g < grid; g++ {
			params, assignments, err := d.applyCell(e, values, e.Coordinates(g))
			if err != nil {
				return fmt.Errorf("experiments[%d]: %w", ei, err)
			}
			pv := validate.New()
			params.validateInto(pv)
			if !pv.IsValid() {
				v.Merge(fmt.Sprintf("experiments[%d].grid[%d]", ei, g), pv)
				index += repeat
				continue
			}

			for r := 0; r < repeat; r++ {
				p := Point{
					Experiment:      e.Name,
					ExperimentIndex: ei,
					Index:           index,
					GridIndex:       g,
					Repeat:          r,
					Seed:            opts.Seed + int64(index),
					Assignments:     assignments,
					Parameters:      params.Clone(),
				}
				index++
				if err := fn(p); err != nil {
					if errors.Is(err, ErrStop) {
						return v.Err()
					}
					return err
				}
			}
		}
	}
	return v.Err()
}

// Expand returns all runs of the document. See Walk for ordering.
func (d *Document) Expand(opts ExpandOptions) ([]Point, error) {
	points := make([]Point, 0, d.TotalRuns())
	err := d.Walk(opts, func(p Point) error {
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (d *Document) applyCell(e Experiment, values [][]float64, coords []int) (Parameters, []Assignment, error) {
	params := d.Parameters.Clone()
	assignments := make([]Assignment, len(e.Sweeps))
	for i, axis := range e.Sweeps {
		value := values[i][coords[i]]
		if err := params.Set(axis.Path, value); err != nil {
			return Parameters{}, nil, err
		}
		// Report the value actually applied, which is rounded for int fields.
		applied, _ := params.Get(axis.Path)
		assignments[i] = Assignment{Path: axis.Path, Value: applied}
	}
	return params, assignments, nil
}

// Summary describes the shape of one experiment.
type Summary struct {
	Name     string   `json:"name"`
	Keys     []string `json:"keys"`
	Shape    []int    `json:"shape"`
	Dims     int      `json:"dims"`
	GridSize int      `json:"grid_size"`
	Repeat   int      `json:"repeat"`
	Runs     int      `json:"runs"`
}

// Summaries returns one Summary per experiment, in order.
func (d *Document) Summaries() []Summary {
	out := make([]Summary, len(d.Experiments))
	for i, e := range d.Experiments {
		out[i] = Summary{
			Name:     e.Name,
			Keys:     e.Sweeps.Paths(),
			Shape:    e.Sweeps.Shape(),
			Dims:     len(e.Sweeps),
			GridSize: e.GridSize(),
			Repeat:   max(e.Repeat, 1),
			Runs:     e.Runs(),
		}
	}
	return out
}
