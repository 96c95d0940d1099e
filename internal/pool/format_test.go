package pool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
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
		{"name": "threshold", "sweeps": {"topology.params.v_thresh": {"min": -70, "max": -50, "count": 5}}},
		{"name": "jitter", "sweeps": {"input.sigma_t": [0, 2, 4]}, "repeat": 2}
	]
}`

func samplePoints(t *testing.T) []experiment.Point {
	t.Helper()
	d, err := experiment.Parse([]byte(sample))
	require.NoError(t, err)
	points, err := d.Expand(experiment.ExpandOptions{Seed: 1437243})
	require.NoError(t, err)
	require.Len(t, points, 11)
	return points
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "threshold_sweep_0.in.gz", FileName("sweeps/threshold_sweep.json", 0))
	assert.Equal(t, "plain_12.in.gz", FileName("plain", 12))
}

func TestPartition(t *testing.T) {
	points := samplePoints(t)

	tests := []struct {
		name string
		size int
		want []int
	}{
		{"exact fit", 11, []int{11}},
		{"remainder", 4, []int{4, 4, 3}},
		{"singletons", 1, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{"oversized", 100, []int{11}},
		{"non-positive is one batch", 0, []int{11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(points, tt.size)
			var sizes []int
			next := 0
			for _, b := range batches {
				sizes = append(sizes, len(b))
				for _, p := range b {
					require.Equal(t, next, p.Index, "batches keep run order")
					next++
				}
			}
			assert.Equal(t, tt.want, sizes)
		})
	}

	assert.Nil(t, Partition(nil, 4))
}

func TestWriteRead_RoundTrip(t *testing.T) {
	points := samplePoints(t)
	path := filepath.Join(t.TempDir(), "nested", FileName("sample.json", 0))

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &File{
		Header: Header{CreatedAt: created, Document: "sample.json", Seed: 1437243},
		Points: points[3:9],
	}
	require.NoError(t, Write(path, f))

	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, got.Header.Version)
	assert.Equal(t, 6, got.Header.PointCount)
	assert.Equal(t, 3, got.Header.FirstPoint)
	assert.Equal(t, []string{"threshold", "jitter"}, got.Header.Experiments)
	assert.True(t, got.Header.Compressed)
	assert.True(t, created.Equal(got.Header.CreatedAt))
	assert.Equal(t, f.Header.Checksum, got.Header.Checksum)

	if diff := cmp.Diff(points[3:9], got.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestReadHeader(t *testing.T) {
	points := samplePoints(t)
	path := filepath.Join(t.TempDir(), "p.in.gz")
	require.NoError(t, Write(path, &File{Header: Header{Document: "p.json"}, Points: points}))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 11, h.PointCount)
	assert.Equal(t, "p.json", h.Document)
	assert.Contains(t, h.Checksum, "sha256:")
}

func TestVerifyChecksum_DetectsCorruption(t *testing.T) {
	points := samplePoints(t)
	path := filepath.Join(t.TempDir(), "p.in.gz")
	require.NoError(t, Write(path, &File{Points: points}))
	require.NoError(t, VerifyChecksum(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-5] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	err = VerifyChecksum(path)
	assert.True(t, errors.Is(err, ErrChecksumMismatch), "got %v", err)

	_, err = Read(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadHeader_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not json", []byte("hello\n")},
		{"wrong version", []byte(`{"version": 9}` + "\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.content, 0o600))
			_, err := ReadHeader(path)
			assert.Error(t, err)
		})
	}

	_, err := ReadHeader(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWrite_Overwrites(t *testing.T) {
	points := samplePoints(t)
	path := filepath.Join(t.TempDir(), "p.in.gz")
	require.NoError(t, Write(path, &File{Points: points}))
	require.NoError(t, Write(path, &File{Points: points[:2]}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got.Points, 2)
}

func TestWriter_WriteAll(t *testing.T) {
	points := samplePoints(t)
	dir := t.TempDir()

	var logs bytes.Buffer
	w := &Writer{
		Dir:      dir,
		Document: "sweeps/sample.json",
		Seed:     1437243,
		Workers:  2,
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		Logger:   zerolog.New(&logs).Level(zerolog.DebugLevel),
	}

	written, err := w.WriteAll(context.Background(), Partition(points, 4))
	require.NoError(t, err)
	require.Len(t, written, 3)

	total := 0
	for i, wr := range written {
		assert.Equal(t, i, wr.Index)
		assert.Equal(t, filepath.Join(dir, FileName("sample.json", i)), wr.Path)
		require.NoError(t, VerifyChecksum(wr.Path))

		h, err := ReadHeader(wr.Path)
		require.NoError(t, err)
		assert.Equal(t, wr.Checksum, h.Checksum)
		assert.Equal(t, i, h.Index)
		assert.Equal(t, "sample.json", h.Document)
		total += wr.Points
	}
	assert.Equal(t, len(points), total)
	assert.Contains(t, logs.String(), "pool written")
}

func TestWriter_Cancelled(t *testing.T) {
	points := samplePoints(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &Writer{Dir: t.TempDir(), Document: "sample.json", Logger: zerolog.Nop()}
	_, err := w.WriteAll(ctx, Partition(points, 4))
	assert.ErrorIs(t, err, context.Canceled)
}
