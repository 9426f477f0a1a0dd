// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-runs a callback when script files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFiles is returned by New when there is nothing to watch.
var ErrNoFiles = errors.New("no files to watch")

// Op is the kind of change seen on a file.
type Op int

const (
	// OpWrite indicates the file was written or created.
	OpWrite Op = iota

	// OpRemove indicates the file was removed or renamed away.
	OpRemove
)

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one debounced change to a watched file.
type Change struct {
	// Path is the absolute path of the changed file.
	Path string

	// Op is the last operation seen within the debounce window.
	Op Op

	Time time.Time
}

// Handler is called with the changes of one debounce window, one entry
// per file, sorted by path.
type Handler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more changes before calling the
	// handler. Default: 100ms
	Debounce time.Duration

	Logger *slog.Logger
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{Debounce: 100 * time.Millisecond}
}

// Watcher watches individual files.
//
// Editors often save by writing a new file and renaming it over the old
// one, which drops a watch on the file itself, so the watcher watches the
// parent directories and filters events down to the files it was given.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	files    map[string]struct{}
	dirs     []string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a watcher for files. Call Start to begin watching.
func New(files []string, handler Handler, opts Options) (*Watcher, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	w := &Watcher{
		files:    make(map[string]struct{}, len(files)),
		handler:  handler,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.watcher = fw
	return w, nil
}

// Start begins watching. It returns once the directories are registered;
// events are handled until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	for _, d := range w.dirs {
		if err := w.watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	w.watching = true
	go w.loop(ctx)
	return nil
}

// Stop stops watching and waits for a running handler to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		started := w.watching
		w.watching = false
		w.mu.Unlock()
		if started {
			<-w.stopped
		}
	})
}

// Wait blocks until the watcher has stopped.
func (w *Watcher) Wait() {
	<-w.stopped
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)

	pending := make(map[string]Change)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 || ctx.Err() != nil {
			return
		}
		batch := make([]Change, 0, len(pending))
		for _, c := range pending {
			batch = append(batch, c)
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
		clear(pending)
		if w.handler != nil {
			w.handler(ctx, batch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			change, ok := w.convert(event)
			if !ok {
				continue
			}
			w.logger.Debug("script changed", "path", change.Path, "op", change.Op.String())
			pending[change.Path] = change
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) convert(event fsnotify.Event) (Change, bool) {
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return Change{}, false
	}
	if _, ok := w.files[path]; !ok {
		return Change{}, false
	}
	change := Change{Path: path, Time: time.Now()}
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		change.Op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		change.Op = OpRemove
	default:
		return Change{}, false
	}
	return change, true
}
