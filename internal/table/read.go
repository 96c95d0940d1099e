package table

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Row is one decoded table row. Values holds only the non-null sweep columns.
type Row struct {
	Experiment string
	Index      int
	GridIndex  int
	Repeat     int
	Seed       int64
	Values     map[string]float64
}

// Table is a fully decoded IPC file.
type Table struct {
	Keys []string
	Rows []Row
}

// Read loads an IPC file written by Writer.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening table file: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading arrow file: %w", err)
	}
	defer r.Close()

	schema := r.Schema()
	if schema.NumFields() < fixedColumns {
		return nil, fmt.Errorf("table has %d columns, want at least %d", schema.NumFields(), fixedColumns)
	}
	for i, name := range []string{ColExperiment, ColIndex, ColGridIndex, ColRepeat, ColSeed} {
		if got := schema.Field(i).Name; got != name {
			return nil, fmt.Errorf("column %d is %q, want %q", i, got, name)
		}
	}

	t := &Table{}
	for i := fixedColumns; i < schema.NumFields(); i++ {
		t.Keys = append(t.Keys, schema.Field(i).Name)
	}
	want := Schema(t.Keys)
	for i, got := range schema.Fields() {
		if !arrow.TypeEqual(got.Type, want.Field(i).Type) {
			return nil, fmt.Errorf("column %q has type %s, want %s", got.Name, got.Type, want.Field(i).Type)
		}
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading record batch %d: %w", i, err)
		}

		names := rec.Column(0).(*array.String)
		index := rec.Column(1).(*array.Int64)
		grid := rec.Column(2).(*array.Int64)
		repeat := rec.Column(3).(*array.Int64)
		seed := rec.Column(4).(*array.Int64)

		for row := 0; row < int(rec.NumRows()); row++ {
			values := make(map[string]float64)
			for k, key := range t.Keys {
				col := rec.Column(fixedColumns + k).(*array.Float64)
				if col.IsValid(row) {
					values[key] = col.Value(row)
				}
			}
			t.Rows = append(t.Rows, Row{
				Experiment: names.Value(row),
				Index:      int(index.Value(row)),
				GridIndex:  int(grid.Value(row)),
				Repeat:     int(repeat.Value(row)),
				Seed:       seed.Value(row),
				Values:     values,
			})
		}
	}
	return t, nil
}
