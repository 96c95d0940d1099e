// Package experiment models sweep configuration documents: the base neuron,
// encoding and spike-train parameters of an associative memory experiment and
// the list of parameter sweeps run against them.
package experiment

import (
	"bytes"
	"encoding/json"
	"maps"
)

// Document is one sweep configuration file.
type Document struct {
	Parameters

	// Experiments are the sweeps to run, in file order.
	Experiments []Experiment `json:"experiments"`
}

// Parameters holds the base sections every sweep point starts from.
type Parameters struct {
	Data     DataParams   `json:"data"`
	Topology Topology     `json:"topology"`
	Input    InputParams  `json:"input"`
	Output   OutputParams `json:"output"`
}

// DataParams describes the binary patterns stored in the memory.
type DataParams struct {
	NBitsIn  int `json:"n_bits_in"`
	NBitsOut int `json:"n_bits_out"`
	NOnesIn  int `json:"n_ones_in"`
	NOnesOut int `json:"n_ones_out"`

	// NSamples is the number of stored patterns; 0 lets the simulator derive it.
	NSamples int `json:"n_samples,omitempty"`
}

// Topology describes the neuron model and its connectivity.
type Topology struct {
	// NeuronType names a point-neuron model, e.g. "IF_cond_exp".
	NeuronType string `json:"neuron_type"`

	// Params maps model parameter names to their default values.
	Params map[string]float64 `json:"params"`

	// W is the baseline synaptic weight.
	W float64 `json:"w"`

	// Multiplicity is the number of neurons per logical unit (default 1).
	Multiplicity int `json:"multiplicity"`
}

// InputParams configures input spike-train generation.
type InputParams struct {
	BurstSize  int     `json:"burst_size"`
	TimeWindow float64 `json:"time_window"` // ms
	ISI        float64 `json:"isi"`
	SigmaT     float64 `json:"sigma_t"`
	SigmaTOffs float64 `json:"sigma_t_offs"`
	P0         float64 `json:"p0"`
	P1         float64 `json:"p1"`
}

// OutputParams describes the expected output spike trains.
type OutputParams struct {
	BurstSize int `json:"burst_size"`
}

// Experiment is one named sweep over the base parameters.
type Experiment struct {
	// Name is a display label; it may contain LaTeX markup.
	Name string `json:"name"`

	// Sweeps maps dotted parameter paths to the values they take, in file order.
	Sweeps Sweeps `json:"sweeps"`

	// Repeat is how often each sweep point is run (default 1).
	Repeat int `json:"repeat"`
}

// UnmarshalJSON decodes a topology section, rejecting unknown fields and
// defaulting multiplicity to 1 when it is absent.
func (t *Topology) UnmarshalJSON(data []byte) error {
	type topologyAlias Topology
	var raw struct {
		topologyAlias
		Multiplicity *int `json:"multiplicity"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}

	*t = Topology(raw.topologyAlias)
	t.Multiplicity = 1
	if raw.Multiplicity != nil {
		t.Multiplicity = *raw.Multiplicity
	}
	return nil
}

// UnmarshalJSON decodes an experiment, rejecting unknown fields and
// defaulting repeat to 1 when it is absent.
func (e *Experiment) UnmarshalJSON(data []byte) error {
	type experimentAlias Experiment
	var raw struct {
		experimentAlias
		Repeat *int `json:"repeat"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}

	*e = Experiment(raw.experimentAlias)
	e.Repeat = 1
	if raw.Repeat != nil {
		e.Repeat = *raw.Repeat
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Parameters) Clone() Parameters {
	p.Topology.Params = maps.Clone(p.Topology.Params)
	return p
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Parameters: d.Parameters.Clone()}
	if d.Experiments != nil {
		out.Experiments = make([]Experiment, len(d.Experiments))
		for i, e := range d.Experiments {
			out.Experiments[i] = e.clone()
		}
	}
	return out
}

func (e Experiment) clone() Experiment {
	if e.Sweeps == nil {
		return e
	}
	sweeps := make(Sweeps, len(e.Sweeps))
	for i, a := range e.Sweeps {
		sweeps[i] = Axis{Path: a.Path, Sweep: a.Sweep.clone()}
	}
	e.Sweeps = sweeps
	return e
}

// Experiment returns the experiment with the given name.
func (d *Document) Experiment(name string) (Experiment, int, bool) {
	for i, e := range d.Experiments {
		if e.Name == name {
			return e, i, true
		}
	}
	return Experiment{}, -1, false
}

// decodeStrict decodes data into v and fails on fields v does not declare.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
