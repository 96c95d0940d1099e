package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nvandessel/namsweep/internal/experiment"
)

const validDoc = `/** watched */ {
	"data": {"n_bits_in": 16, "n_bits_out": 16, "n_ones_in": 3, "n_ones_out": 3},
	"topology": {"neuron_type": "IF_cond_exp", "params": {}, "w": 0.011},
	"input": {"burst_size": 1, "time_window": 100.0, "isi": 2.0, "sigma_t": 0.0,
		"sigma_t_offs": 0.0, "p0": 0.0, "p1": 0.0},
	"output": {"burst_size": 1},
	"experiments": []
}`

func nextResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Result{}
	}
}

func TestWatcher_RevalidatesOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 8)
	done := make(chan error, 1)

	w := New([]string{path}, WithDebounce(20*time.Millisecond))
	go func() {
		done <- w.Run(ctx, func(r Result) { results <- r })
	}()

	first := nextResult(t, results)
	require.NoError(t, first.Err)
	assert.NotNil(t, first.Document)

	require.NoError(t, os.WriteFile(path, []byte(`{"data": `), 0o600))
	broken := nextResult(t, results)
	var se *experiment.SyntaxError
	assert.ErrorAs(t, broken.Err, &se)

	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))
	fixed := nextResult(t, results)
	assert.NoError(t, fixed.Err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 8)
	done := make(chan error, 1)

	w := New([]string{path}, WithDebounce(10*time.Millisecond))
	go func() {
		done <- w.Run(ctx, func(r Result) { results <- r })
	}()
	nextResult(t, results)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))
	select {
	case r := <-results:
		t.Errorf("unexpected result for %s", r.Path)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "nope", "sweep.json")})
	err := w.Run(context.Background(), func(Result) {})
	assert.Error(t, err)
}
