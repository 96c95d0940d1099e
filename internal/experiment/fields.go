package experiment

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// Kind is the numeric type of a sweepable field.
type Kind int

const (
	KindInt Kind = iota + 1
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// paramsPrefix selects an entry of topology.params.
const paramsPrefix = "topology.params."

type scalarField struct {
	kind  Kind
	ints  func(*Parameters) *int
	float func(*Parameters) *float64
}

func intField(f func(*Parameters) *int) scalarField {
	return scalarField{kind: KindInt, ints: f}
}

func floatField(f func(*Parameters) *float64) scalarField {
	return scalarField{kind: KindFloat, float: f}
}

// scalarFields lists every fixed dotted path that names a numeric scalar.
// Entries of topology.params are resolved against the document instead.
var scalarFields = map[string]scalarField{
	"data.n_bits_in":  intField(func(p *Parameters) *int { return &p.Data.NBitsIn }),
	"data.n_bits_out": intField(func(p *Parameters) *int { return &p.Data.NBitsOut }),
	"data.n_ones_in":  intField(func(p *Parameters) *int { return &p.Data.NOnesIn }),
	"data.n_ones_out": intField(func(p *Parameters) *int { return &p.Data.NOnesOut }),
	"data.n_samples":  intField(func(p *Parameters) *int { return &p.Data.NSamples }),

	"topology.w":            floatField(func(p *Parameters) *float64 { return &p.Topology.W }),
	"topology.multiplicity": intField(func(p *Parameters) *int { return &p.Topology.Multiplicity }),

	"input.burst_size":   intField(func(p *Parameters) *int { return &p.Input.BurstSize }),
	"input.time_window":  floatField(func(p *Parameters) *float64 { return &p.Input.TimeWindow }),
	"input.isi":          floatField(func(p *Parameters) *float64 { return &p.Input.ISI }),
	"input.sigma_t":      floatField(func(p *Parameters) *float64 { return &p.Input.SigmaT }),
	"input.sigma_t_offs": floatField(func(p *Parameters) *float64 { return &p.Input.SigmaTOffs }),
	"input.p0":           floatField(func(p *Parameters) *float64 { return &p.Input.P0 }),
	"input.p1":           floatField(func(p *Parameters) *float64 { return &p.Input.P1 }),

	"output.burst_size": intField(func(p *Parameters) *int { return &p.Output.BurstSize }),
}

// Resolve reports the kind of the scalar named by a dotted path. Paths under
// topology.params resolve only when the parameter exists in p.
func (p *Parameters) Resolve(path string) (Kind, bool) {
	if f, ok := scalarFields[path]; ok {
		return f.kind, true
	}
	if name, ok := strings.CutPrefix(path, paramsPrefix); ok {
		if _, exists := p.Topology.Params[name]; exists {
			return KindFloat, true
		}
	}
	return 0, false
}

// Get returns the value at a dotted path.
func (p *Parameters) Get(path string) (float64, error) {
	if f, ok := scalarFields[path]; ok {
		if f.kind == KindInt {
			return float64(*f.ints(p)), nil
		}
		return *f.float(p), nil
	}
	if name, ok := strings.CutPrefix(path, paramsPrefix); ok {
		if v, exists := p.Topology.Params[name]; exists {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter path %q", path)
}

// ErrIntRange marks a value that does not fit an integer field.
var ErrIntRange = errors.New("out of range for an integer field")

// roundInt returns the integer nearest to v. Integer fields hold counts and
// sizes, so anything outside the int32 range is rejected.
func roundInt(v float64) (int, error) {
	r := math.Round(v)
	if math.IsNaN(r) || r < math.MinInt32 || r > math.MaxInt32 {
		return 0, fmt.Errorf("value %g is %w", v, ErrIntRange)
	}
	return int(r), nil
}

// Set writes v at a dotted path. Integer fields take the nearest integer.
// The params map is copied before it is written so clones never share it.
func (p *Parameters) Set(path string, v float64) error {
	if f, ok := scalarFields[path]; ok {
		if f.kind == KindInt {
			n, err := roundInt(v)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			*f.ints(p) = n
		} else {
			*f.float(p) = v
		}
		return nil
	}
	if name, ok := strings.CutPrefix(path, paramsPrefix); ok {
		if _, exists := p.Topology.Params[name]; exists {
			params := maps.Clone(p.Topology.Params)
			params[name] = v
			p.Topology.Params = params
			return nil
		}
	}
	return fmt.Errorf("unknown parameter path %q", path)
}

// Paths lists every sweepable path of p, sorted.
func (p *Parameters) Paths() []string {
	out := make([]string, 0, len(scalarFields)+len(p.Topology.Params))
	for path := range scalarFields {
		out = append(out, path)
	}
	for name := range p.Topology.Params {
		out = append(out, paramsPrefix+name)
	}
	slices.Sort(out)
	return out
}

// suggest returns the known path closest to an unknown one: a path sharing
// its last segment, or else one within a small edit distance.
func (p *Parameters) suggest(path string) string {
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	paths := p.Paths()
	for _, candidate := range paths {
		if strings.HasSuffix(candidate, "."+last) {
			return candidate
		}
	}

	best, bestDist := "", maxSuggestDistance+1
	for _, candidate := range paths {
		if d := editDistance(path, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

const maxSuggestDistance = 3

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
