package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/namsweep/internal/experiment"
)

const sample = `{
	"data": {"n_bits_in": 16, "n_bits_out": 16, "n_ones_in": 3, "n_ones_out": 3},
	"topology": {"neuron_type": "IF_cond_exp", "params": {"v_thresh": -57.0}, "w": 0.011},
	"input": {"burst_size": 1, "time_window": 100.0, "isi": 2.0, "sigma_t": 0.0,
		"sigma_t_offs": 0.0, "p0": 0.0, "p1": 0.0},
	"output": {"burst_size": 1},
	"experiments": [
		{"name": "threshold", "sweeps": {
			"topology.params.v_thresh": {"min": -70, "max": -50, "count": 3},
			"input.sigma_t": [1]
		}},
		{"name": "jitter", "sweeps": {"input.sigma_t": [0, 2]}, "repeat": 2},
		{"name": "baseline", "sweeps": {}}
	]
}`

func sampleDoc(t *testing.T) (*experiment.Document, []experiment.Point) {
	t.Helper()
	d, err := experiment.Parse([]byte(sample))
	require.NoError(t, err)
	points, err := d.Expand(experiment.ExpandOptions{Seed: 100})
	require.NoError(t, err)
	return d, points
}

func TestKeys(t *testing.T) {
	d, _ := sampleDoc(t)
	assert.Equal(t, []string{"topology.params.v_thresh", "input.sigma_t"}, Keys(d))
}

func TestSchema(t *testing.T) {
	s := Schema([]string{"input.isi"})
	require.Equal(t, 6, s.NumFields())
	assert.Equal(t, ColExperiment, s.Field(0).Name)
	assert.Equal(t, "input.isi", s.Field(5).Name)
	assert.True(t, s.Field(5).Nullable)
}

func TestWriteFile_RoundTrip(t *testing.T) {
	d, points := sampleDoc(t)
	path := filepath.Join(t.TempDir(), "points.arrow")

	require.NoError(t, WriteFile(path, Keys(d), points))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Keys(d), got.Keys)
	require.Len(t, got.Rows, len(points))

	first := got.Rows[0]
	assert.Equal(t, "threshold", first.Experiment)
	assert.Equal(t, int64(100), first.Seed)
	assert.Equal(t, map[string]float64{"topology.params.v_thresh": -70, "input.sigma_t": 1}, first.Values)

	jitter := got.Rows[4]
	assert.Equal(t, "jitter", jitter.Experiment)
	assert.Equal(t, 1, jitter.Repeat)
	assert.Equal(t, 0, jitter.GridIndex)
	assert.Equal(t, map[string]float64{"input.sigma_t": 0}, jitter.Values, "unswept keys are null")

	last := got.Rows[len(got.Rows)-1]
	assert.Equal(t, "baseline", last.Experiment)
	assert.Empty(t, last.Values)
	assert.Equal(t, len(points)-1, last.Index)
}

func TestWriter_MultipleBatches(t *testing.T) {
	d, points := sampleDoc(t)

	path := filepath.Join(t.TempDir(), "batched.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := NewWriter(f, Keys(d))
	require.NoError(t, err)
	w.batchRows = 3
	for _, p := range points {
		require.NoError(t, w.Append(p))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, len(points))
	for i, row := range got.Rows {
		assert.Equal(t, points[i].Index, row.Index)
		assert.Equal(t, points[i].Seed, row.Seed)
	}
}

func TestWriter_UnknownKey(t *testing.T) {
	_, points := sampleDoc(t)

	f, err := os.Create(filepath.Join(t.TempDir(), "partial.arrow"))
	require.NoError(t, err)
	defer f.Close()
	w, err := NewWriter(f, []string{"input.sigma_t"})
	require.NoError(t, err)
	err = w.Append(points[0])
	assert.ErrorContains(t, err, `"topology.params.v_thresh" has no column`)
	require.NoError(t, w.Close())
}

func TestRead_NotArrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.arrow")
	require.NoError(t, os.WriteFile(path, []byte("not an arrow file"), 0o600))
	_, err := Read(path)
	assert.Error(t, err)
}

// writeRaw writes a single-row IPC file with the given schema, filling every
// column through fill.
func writeRaw(t *testing.T, schema *arrow.Schema, fill func(b *array.RecordBuilder)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	require.NoError(t, err)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	fill(b)
	rec := b.NewRecord()
	defer rec.Release()
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())
	return path
}

func TestRead_ColumnTypeMismatch(t *testing.T) {
	t.Run("fixed column", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			{Name: ColExperiment, Type: arrow.BinaryTypes.String},
			{Name: ColIndex, Type: arrow.BinaryTypes.String},
			{Name: ColGridIndex, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColRepeat, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColSeed, Type: arrow.PrimitiveTypes.Int64},
		}, nil)
		path := writeRaw(t, schema, func(b *array.RecordBuilder) {
			b.Field(0).(*array.StringBuilder).Append("a")
			b.Field(1).(*array.StringBuilder).Append("0")
			for i := 2; i < 5; i++ {
				b.Field(i).(*array.Int64Builder).Append(0)
			}
		})

		_, err := Read(path)
		assert.ErrorContains(t, err, `column "index" has type utf8, want int64`)
	})

	t.Run("sweep column", func(t *testing.T) {
		fields := Schema(nil).Fields()
		fields = append(fields, arrow.Field{Name: "input.isi", Type: arrow.PrimitiveTypes.Int32})
		path := writeRaw(t, arrow.NewSchema(fields, nil), func(b *array.RecordBuilder) {
			b.Field(0).(*array.StringBuilder).Append("a")
			for i := 1; i < 5; i++ {
				b.Field(i).(*array.Int64Builder).Append(0)
			}
			b.Field(5).(*array.Int32Builder).Append(2)
		})

		_, err := Read(path)
		assert.ErrorContains(t, err, `column "input.isi" has type int32, want float64`)
	})
}

func TestWriteDocument(t *testing.T) {
	d, points := sampleDoc(t)
	path := filepath.Join(t.TempDir(), "jitter.arrow")

	n, err := WriteDocument(path, d, experiment.ExpandOptions{Seed: 100, Experiment: "jitter"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Keys(d), got.Keys, "filtered tables keep every sweep column")
	require.Len(t, got.Rows, 4)
	assert.Equal(t, points[3].Index, got.Rows[0].Index)
	assert.Equal(t, points[3].Seed, got.Rows[0].Seed)
}
