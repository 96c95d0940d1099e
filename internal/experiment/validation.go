package experiment

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nvandessel/namsweep/internal/validate"
)

// MaxRuns bounds the number of runs a single experiment may expand to.
const MaxRuns = 1 << 24

// Validate checks the base parameters and every experiment. The returned
// error is a validate.ValidationError naming each offending field path.
func (d *Document) Validate() error {
	v := validate.New()
	d.Parameters.validateInto(v)
	d.validateExperiments(v)
	return v.Err()
}

// Validate checks the parameter sections on their own, as used for each
// expanded sweep point.
func (p *Parameters) Validate() error {
	v := validate.New()
	p.validateInto(v)
	return v.Err()
}

func (p *Parameters) validateInto(v *validate.Validator) {
	d := p.Data
	v.NonNegativeInt("data.n_bits_in", d.NBitsIn)
	v.NonNegativeInt("data.n_bits_out", d.NBitsOut)
	v.NonNegativeInt("data.n_ones_in", d.NOnesIn)
	v.NonNegativeInt("data.n_ones_out", d.NOnesOut)
	v.NonNegativeInt("data.n_samples", d.NSamples)
	v.AtMost("data.n_ones_in", d.NOnesIn, "data.n_bits_in", d.NBitsIn)
	v.AtMost("data.n_ones_out", d.NOnesOut, "data.n_bits_out", d.NBitsOut)

	t := p.Topology
	v.NotEmpty("topology.neuron_type", t.NeuronType)
	v.Finite("topology.w", t.W)
	v.PositiveInt("topology.multiplicity", t.Multiplicity)
	for name, value := range t.Params {
		v.Finite(paramsPrefix+name, value)
	}

	in := p.Input
	v.PositiveInt("input.burst_size", in.BurstSize)
	v.Positive("input.time_window", in.TimeWindow)
	v.Positive("input.isi", in.ISI)
	v.NonNegative("input.sigma_t", in.SigmaT)
	v.NonNegative("input.sigma_t_offs", in.SigmaTOffs)
	v.Probability("input.p0", in.P0)
	v.Probability("input.p1", in.P1)

	v.PositiveInt("output.burst_size", p.Output.BurstSize)
}

func (d *Document) validateExperiments(v *validate.Validator) {
	seen := make(map[string]int, len(d.Experiments))
	for i, e := range d.Experiments {
		prefix := fmt.Sprintf("experiments[%d]", i)

		v.NotEmpty(prefix+".name", e.Name)
		if first, dup := seen[e.Name]; dup && e.Name != "" {
			v.AddError(prefix+".name", fmt.Sprintf("duplicate experiment name (also experiments[%d])", first), e.Name)
		} else {
			seen[e.Name] = i
		}
		v.PositiveInt(prefix+".repeat", e.Repeat)

		for _, axis := range e.Sweeps {
			d.validateAxis(v, prefix+".sweeps["+strconv.Quote(axis.Path)+"]", axis)
		}

		if runs, ok := e.runs(); !ok || runs > MaxRuns {
			v.AddError(prefix, fmt.Sprintf("expands to more than %d runs", MaxRuns), nil)
		}
	}
}

func (d *Document) validateAxis(v *validate.Validator, field string, axis Axis) {
	if _, ok := d.Parameters.Resolve(axis.Path); !ok {
		msg := "unknown parameter path"
		if hint := d.Parameters.suggest(axis.Path); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		v.AddError(field, msg, axis.Path)
	}

	kind, _ := d.Parameters.Resolve(axis.Path)
	if axis.Sweep.IsRange() {
		r := axis.Sweep.Range
		minOK := v.Finite(field+".min", r.Min)
		maxOK := v.Finite(field+".max", r.Max)
		if r.Count < 1 {
			v.AddError(field+".count", fmt.Sprintf("must be >= 1, got %d", r.Count), r.Count)
		}
		if minOK && maxOK && r.Min > r.Max {
			v.AddError(field, fmt.Sprintf("min (%g) must not exceed max (%g)", r.Min, r.Max), nil)
		}
		if kind == KindInt {
			if minOK {
				checkIntRange(v, field+".min", r.Min)
			}
			if maxOK {
				checkIntRange(v, field+".max", r.Max)
			}
		}
		return
	}

	if len(axis.Sweep.List) == 0 {
		v.AddError(field, "enumerated sweep must list at least one value", nil)
	}
	for i, value := range axis.Sweep.List {
		name := fmt.Sprintf("%s[%d]", field, i)
		if v.Finite(name, value) && kind == KindInt {
			checkIntRange(v, name, value)
		}
	}
}

func checkIntRange(v *validate.Validator, field string, value float64) {
	if _, err := roundInt(value); err != nil {
		v.AddCause(field, err.Error(), value, ErrIntRange)
	}
}

// runs returns GridSize*Repeat and false when the product overflows.
func (e Experiment) runs() (int, bool) {
	total := 1
	for _, n := range e.Sweeps.Shape() {
		if n <= 0 {
			return 0, true
		}
		if total > math.MaxInt/n {
			return 0, false
		}
		total *= n
	}
	if e.Repeat > 0 {
		if total > math.MaxInt/e.Repeat {
			return 0, false
		}
		total *= e.Repeat
	}
	return total, true
}
