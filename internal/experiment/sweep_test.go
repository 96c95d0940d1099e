package experiment

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeSweep_Values(t *testing.T) {
	r := RangeSweep{Min: -104.0, Max: -55.0, Count: 32}
	values := r.Values()

	require.Len(t, values, 32)
	assert.Equal(t, -104.0, values[0])
	assert.Equal(t, -55.0, values[31])
	assert.InDelta(t, 1.5806, r.Step(), 1e-4)

	for i := 1; i < len(values); i++ {
		assert.InDelta(t, r.Step(), values[i]-values[i-1], 1e-9, "step %d", i)
	}
}

func TestRangeSweep_Edges(t *testing.T) {
	tests := []struct {
		name string
		r    RangeSweep
		want []float64
	}{
		{"single sample is min", RangeSweep{Min: 2, Max: 5, Count: 1}, []float64{2}},
		{"two samples are endpoints", RangeSweep{Min: 2, Max: 5, Count: 2}, []float64{2, 5}},
		{"degenerate range", RangeSweep{Min: 3, Max: 3, Count: 3}, []float64{3, 3, 3}},
		{"zero count", RangeSweep{Min: 0, Max: 1, Count: 0}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Values())
		})
	}
}

func TestRangeSweep_EndpointExact(t *testing.T) {
	// 0.1 steps accumulate rounding error; the last sample must still be max.
	r := RangeSweep{Min: 0, Max: 0.7, Count: 8}
	values := r.Values()
	assert.Equal(t, 0.7, values[len(values)-1])
	assert.False(t, math.IsNaN(values[3]))
}

func TestSweep_UnmarshalJSON(t *testing.T) {
	var rs Sweep
	require.NoError(t, json.Unmarshal([]byte(`{"min": 1, "max": 2, "count": 3}`), &rs))
	require.True(t, rs.IsRange())
	assert.Equal(t, RangeSweep{Min: 1, Max: 2, Count: 3}, *rs.Range)
	assert.Equal(t, 3, rs.Len())

	var ls Sweep
	require.NoError(t, json.Unmarshal([]byte(`[0.0, 2.0, 4.0]`), &ls))
	assert.False(t, ls.IsRange())
	assert.Equal(t, []float64{0, 2, 4}, ls.Values())
}

func TestSweep_UnmarshalJSON_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantField string
	}{
		{"missing count", `{"min": 1, "max": 2}`, "count"},
		{"missing min", `{"max": 2, "count": 2}`, "min"},
		{"fractional count", `{"min": 1, "max": 2, "count": 2.5}`, "count"},
		{"unknown key", `{"min": 1, "max": 2, "count": 2, "step": 1}`, "step"},
		{"scalar", `4`, ""},
		{"strings", `["a"]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sweep
			err := json.Unmarshal([]byte(tt.input), &s)
			require.Error(t, err)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantField, fe.Field)
		})
	}
}

func TestSweeps_PreservesOrder(t *testing.T) {
	input := `{"z.last": [1], "a.first": {"min": 0, "max": 1, "count": 2}, "m.middle": [3, 4]}`

	var s Sweeps
	require.NoError(t, json.Unmarshal([]byte(input), &s))
	assert.Equal(t, []string{"z.last", "a.first", "m.middle"}, s.Paths())
	assert.Equal(t, []int{1, 2, 2}, s.Shape())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"z.last":[1],"a.first":{"min":0,"max":1,"count":2},"m.middle":[3,4]}`, string(out))
}

func TestSweeps_DuplicateKey(t *testing.T) {
	var s Sweeps
	err := json.Unmarshal([]byte(`{"input.isi": [1], "input.isi": [2]}`), &s)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, `sweeps["input.isi"]`, fe.Field)
	assert.Equal(t, "duplicate sweep key", fe.Msg)
}

func TestSweeps_NestedFieldPath(t *testing.T) {
	var s Sweeps
	err := json.Unmarshal([]byte(`{"input.isi": {"min": 1, "max": 2}}`), &s)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, `sweeps["input.isi"].count`, fe.Field)
}

func TestSweeps_NotObject(t *testing.T) {
	var s Sweeps
	err := json.Unmarshal([]byte(`[1, 2]`), &s)
	require.Error(t, err)
}
