package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// RangeSweep samples Count evenly spaced values over [Min, Max], both
// endpoints included.
type RangeSweep struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Values returns the samples of the range. The first sample is exactly Min
// and the last exactly Max; a count of one yields just Min.
func (r RangeSweep) Values() []float64 {
	if r.Count < 1 {
		return nil
	}
	if r.Count == 1 {
		return []float64{r.Min}
	}

	out := make([]float64, r.Count)
	step := r.Step()
	for i := range out {
		out[i] = r.Min + float64(i)*step
	}
	out[r.Count-1] = r.Max
	return out
}

// Step returns the distance between consecutive samples.
func (r RangeSweep) Step() float64 {
	if r.Count < 2 {
		return 0
	}
	return (r.Max - r.Min) / float64(r.Count-1)
}

// Sweep is either a range {min, max, count} or an explicit list of values.
// Exactly one of Range and List is set.
type Sweep struct {
	Range *RangeSweep
	List  []float64
}

// Range returns a range sweep.
func Range(minVal, maxVal float64, count int) Sweep {
	return Sweep{Range: &RangeSweep{Min: minVal, Max: maxVal, Count: count}}
}

// List returns an enumerated sweep over the given values.
func List(values ...float64) Sweep {
	if values == nil {
		values = []float64{}
	}
	return Sweep{List: values}
}

// IsRange reports whether the sweep is a range sweep.
func (s Sweep) IsRange() bool {
	return s.Range != nil
}

// Len returns the number of values the sweep produces.
func (s Sweep) Len() int {
	if s.IsRange() {
		return max(s.Range.Count, 0)
	}
	return len(s.List)
}

// Values returns the values of the sweep in order.
func (s Sweep) Values() []float64 {
	if s.IsRange() {
		return s.Range.Values()
	}
	return slices.Clone(s.List)
}

func (s Sweep) clone() Sweep {
	if s.IsRange() {
		r := *s.Range
		return Sweep{Range: &r}
	}
	return Sweep{List: slices.Clone(s.List)}
}

// MarshalJSON encodes a range as an object and a list as an array.
func (s Sweep) MarshalJSON() ([]byte, error) {
	if s.IsRange() {
		return json.Marshal(s.Range)
	}
	if s.List == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.List)
}

// UnmarshalJSON accepts either form. Range sweeps must name min, max and
// count and nothing else.
func (s *Sweep) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &FieldError{Msg: "empty sweep"}
	}

	switch data[0] {
	case '[':
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return &FieldError{Msg: "enumerated sweep must be a list of numbers"}
		}
		*s = List(values...)
		return nil
	case '{':
		var raw struct {
			Min   *float64 `json:"min"`
			Max   *float64 `json:"max"`
			Count *int     `json:"count"`
		}
		if err := decodeStrict(data, &raw); err != nil {
			return fieldErrorFrom("", err)
		}
		switch {
		case raw.Min == nil:
			return &FieldError{Field: "min", Msg: "range sweep requires min"}
		case raw.Max == nil:
			return &FieldError{Field: "max", Msg: "range sweep requires max"}
		case raw.Count == nil:
			return &FieldError{Field: "count", Msg: "range sweep requires count"}
		}
		*s = Range(*raw.Min, *raw.Max, *raw.Count)
		return nil
	default:
		return &FieldError{Msg: "sweep must be a {min, max, count} object or a list of values"}
	}
}

// Axis is one swept parameter.
type Axis struct {
	Path  string
	Sweep Sweep
}

// Sweeps is the ordered set of axes of an experiment. The JSON form is an
// object; key order is kept because it fixes the grid dimension order.
type Sweeps []Axis

// Paths returns the swept parameter paths in order.
func (s Sweeps) Paths() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Path
	}
	return out
}

// Shape returns the number of values along each axis.
func (s Sweeps) Shape() []int {
	out := make([]int, len(s))
	for i, a := range s {
		out[i] = a.Sweep.Len()
	}
	return out
}

// Lookup returns the sweep for a path.
func (s Sweeps) Lookup(path string) (Sweep, bool) {
	for _, a := range s {
		if a.Path == path {
			return a.Sweep, true
		}
	}
	return Sweep{}, false
}

// MarshalJSON writes the axes as an object in order.
func (s Sweeps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Path)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.Sweep)
		if err != nil {
			return nil, fmt.Errorf("sweep %q: %w", a.Path, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the sweeps object keeping key order. Duplicate keys are
// rejected.
func (s *Sweeps) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return &FieldError{Field: "sweeps", Msg: err.Error()}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &FieldError{Field: "sweeps", Msg: "sweeps must be an object mapping parameter paths to sweeps"}
	}

	var axes Sweeps
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return &FieldError{Field: "sweeps", Msg: err.Error()}
		}
		key, _ := tok.(string)
		field := "sweeps[" + strconv.Quote(key) + "]"

		if _, dup := axes.Lookup(key); dup {
			return &FieldError{Field: field, Msg: "duplicate sweep key"}
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return &FieldError{Field: field, Msg: err.Error()}
		}

		var sw Sweep
		if err := sw.UnmarshalJSON(raw); err != nil {
			return fieldErrorFrom(field, err)
		}
		axes = append(axes, Axis{Path: key, Sweep: sw})
	}

	*s = axes
	return nil
}

// FieldError is a decoding failure located at a field path relative to the
// value being decoded.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// fieldErrorFrom converts an encoding/json error into a FieldError rooted at
// prefix.
func fieldErrorFrom(prefix string, err error) *FieldError {
	var fe *FieldError
	var te *json.UnmarshalTypeError
	var se *json.SyntaxError

	switch {
	case errors.As(err, &fe):
		return &FieldError{Field: joinField(prefix, fe.Field), Msg: fe.Msg}
	case errors.As(err, &te):
		return &FieldError{
			Field: joinField(prefix, te.Field),
			Msg:   fmt.Sprintf("expected %s, got JSON %s", typeName(te), te.Value),
		}
	case errors.As(err, &se):
		return &FieldError{Field: prefix, Msg: se.Error()}
	}

	if name, ok := unknownField(err); ok {
		return &FieldError{Field: joinField(prefix, name), Msg: "unknown field"}
	}
	return &FieldError{Field: prefix, Msg: err.Error()}
}

// unknownField extracts the field name from the error DisallowUnknownFields
// produces; encoding/json has no typed error for it.
func unknownField(err error) (string, bool) {
	const marker = "json: unknown field "
	msg := err.Error()
	if len(msg) <= len(marker) || msg[:len(marker)] != marker {
		return "", false
	}
	name, uerr := strconv.Unquote(msg[len(marker):])
	if uerr != nil {
		return msg[len(marker):], true
	}
	return name, true
}

func typeName(te *json.UnmarshalTypeError) string {
	if te.Type == nil {
		return "value"
	}
	switch te.Type.Kind() {
	case reflect.Int, reflect.Int64:
		return "integer"
	case reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice:
		return "array"
	}
	return te.Type.String()
}

func joinField(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	default:
		return prefix + "." + field
	}
}
