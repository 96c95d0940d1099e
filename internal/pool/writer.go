package pool

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/namsweep/internal/experiment"
)

// Written describes one pool file produced by a Writer.
type Written struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Points   int    `json:"points"`
}

// Writer writes the batches of a plan into a directory.
type Writer struct {
	Dir      string
	Document string
	Seed     int64
	Workers  int

	// Now stamps each header; defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// WriteAll writes one pool file per batch, at most Workers at a time. The
// result is ordered by batch index. Files already written are left in place
// when a later batch fails.
func (w *Writer) WriteAll(ctx context.Context, batches [][]experiment.Point) ([]Written, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	created := now().UTC()

	out := make([]Written, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	if w.Workers > 0 {
		g.SetLimit(w.Workers)
	}

	for i, batch := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			path := filepath.Join(w.Dir, FileName(w.Document, i))
			f := &File{
				Header: Header{
					CreatedAt: created,
					Document:  filepath.Base(w.Document),
					Index:     i,
					Seed:      w.Seed,
				},
				Points: batch,
			}
			if err := Write(path, f); err != nil {
				return err
			}

			w.Logger.Debug().
				Str("path", path).
				Int("points", len(batch)).
				Str("checksum", f.Header.Checksum).
				Msg("pool written")
			out[i] = Written{Index: i, Path: path, Checksum: f.Header.Checksum, Points: len(batch)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
