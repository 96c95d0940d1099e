// Package table writes expanded sweep points as an Apache Arrow IPC file, one
// row per run, for loading into analysis tools.
package table

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/namsweep/internal/experiment"
)

// Fixed column names, in schema order. Sweep key columns follow them.
const (
	ColExperiment = "experiment"
	ColIndex      = "index"
	ColGridIndex  = "grid_index"
	ColRepeat     = "repeat"
	ColSeed       = "seed"
)

const fixedColumns = 5

// DefaultBatchRows is the number of rows per record batch.
const DefaultBatchRows = 4096

// Keys returns the distinct sweep keys of a document, in first-seen order.
func Keys(d *experiment.Document) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, e := range d.Experiments {
		for _, path := range e.Sweeps.Paths() {
			if !seen[path] {
				seen[path] = true
				keys = append(keys, path)
			}
		}
	}
	return keys
}

// Schema returns the table schema for the given sweep keys. Key columns are
// nullable because an experiment only fills the keys it sweeps.
func Schema(keys []string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: ColExperiment, Type: arrow.BinaryTypes.String},
		{Name: ColIndex, Type: arrow.PrimitiveTypes.Int64},
		{Name: ColGridIndex, Type: arrow.PrimitiveTypes.Int64},
		{Name: ColRepeat, Type: arrow.PrimitiveTypes.Int64},
		{Name: ColSeed, Type: arrow.PrimitiveTypes.Int64},
	}
	for _, k := range keys {
		fields = append(fields, arrow.Field{Name: k, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// Writer streams points into an Arrow IPC file.
type Writer struct {
	keys      []string
	column    map[string]int
	batchRows int
	pending   int

	builder *array.RecordBuilder
	w       *ipc.FileWriter
}

// NewWriter starts an IPC file on w with one column per sweep key. The file
// format needs to seek back when writing the footer.
func NewWriter(w io.WriteSeeker, keys []string) (*Writer, error) {
	mem := memory.NewGoAllocator()
	schema := Schema(keys)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("creating arrow writer: %w", err)
	}

	column := make(map[string]int, len(keys))
	for i, k := range keys {
		column[k] = fixedColumns + i
	}
	return &Writer{
		keys:      keys,
		column:    column,
		batchRows: DefaultBatchRows,
		builder:   array.NewRecordBuilder(mem, schema),
		w:         fw,
	}, nil
}

// Append adds one row. Assignments to paths outside the writer's keys are an
// error.
func (w *Writer) Append(p experiment.Point) error {
	values := make([]*float64, len(w.keys))
	for _, a := range p.Assignments {
		col, ok := w.column[a.Path]
		if !ok {
			return fmt.Errorf("point %d: sweep key %q has no column", p.Index, a.Path)
		}
		v := a.Value
		values[col-fixedColumns] = &v
	}

	b := w.builder
	b.Field(0).(*array.StringBuilder).Append(p.Experiment)
	b.Field(1).(*array.Int64Builder).Append(int64(p.Index))
	b.Field(2).(*array.Int64Builder).Append(int64(p.GridIndex))
	b.Field(3).(*array.Int64Builder).Append(int64(p.Repeat))
	b.Field(4).(*array.Int64Builder).Append(p.Seed)
	for i, v := range values {
		fb := b.Field(fixedColumns + i).(*array.Float64Builder)
		if v == nil {
			fb.AppendNull()
		} else {
			fb.Append(*v)
		}
	}

	w.pending++
	if w.pending >= w.batchRows {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if w.pending == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.pending = 0

	if err := w.w.Write(rec); err != nil {
		return fmt.Errorf("writing record batch: %w", err)
	}
	return nil
}

// Close flushes buffered rows and writes the file footer. It does not close
// the underlying writer.
func (w *Writer) Close() error {
	defer w.builder.Release()
	ferr := w.flush()
	cerr := w.w.Close()
	return errors.Join(ferr, cerr)
}

// WriteFile writes points to path as a single Arrow IPC file.
func WriteFile(path string, keys []string, points []experiment.Point) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating table file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing table file: %w", cerr)
		}
	}()

	w, err := NewWriter(f, keys)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := w.Append(p); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// WriteDocument expands d straight into an Arrow file at path without
// holding all points in memory. It returns the number of rows written.
func WriteDocument(path string, d *experiment.Document, opts experiment.ExpandOptions) (n int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating table file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing table file: %w", cerr)
		}
	}()

	w, err := NewWriter(f, Keys(d))
	if err != nil {
		return 0, err
	}
	err = d.Walk(opts, func(p experiment.Point) error {
		if err := w.Append(p); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		_ = w.Close()
		return n, err
	}
	return n, w.Close()
}
