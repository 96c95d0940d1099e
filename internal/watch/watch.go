// Package watch re-validates sweep documents whenever they change on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/nvandessel/namsweep/internal/experiment"
)

// DefaultDebounce is how long the watcher waits after the last change to a
// file before validating it.
const DefaultDebounce = 500 * time.Millisecond

// Result is the outcome of validating one document.
type Result struct {
	Path     string
	Document *experiment.Document
	Err      error
}

// Watcher validates a fixed set of documents once and then again after every
// write to them.
type Watcher struct {
	paths    []string
	debounce time.Duration
	loader   *experiment.Loader
	logger   zerolog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher for the given document paths.
func New(paths []string, opts ...Option) *Watcher {
	w := &Watcher{
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		w.paths = append(w.paths, abs)
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "watch").Logger()
	w.loader = experiment.NewLoader(w.logger)
	return w
}

// Run reports a Result for every document, then one for each document that
// changes, until ctx is cancelled. fn is called from Run's goroutine.
//
// Parent directories are watched rather than the files themselves so that
// editors replacing a file by rename are still noticed.
func (w *Watcher) Run(ctx context.Context, fn func(Result)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	var dirs []string
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if slices.Contains(dirs, dir) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs = append(dirs, dir)
	}

	for _, p := range w.paths {
		fn(w.check(p))
	}
	w.logger.Info().Strs("paths", w.paths).Msg("watching documents for changes")

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !slices.Contains(w.paths, path) {
				continue
			}
			w.logger.Debug().Str("path", path).Str("op", event.Op.String()).Msg("document changed")
			pending[path] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			for _, p := range w.paths {
				if pending[p] {
					fn(w.check(p))
				}
			}
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) check(path string) Result {
	doc, err := w.loader.Load(path)
	return Result{Path: path, Document: doc, Err: err}
}
