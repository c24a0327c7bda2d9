// Package watch re-runs work when input files change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	lperrors "github.com/logflow/logprune/pkg/errors"
)

// DefaultDebounce is how long a file must stay quiet before OnChange runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors files for changes and triggers updates.
//
// Changes are debounced per file and handled one at a time on the goroutine
// running Run, so OnChange never runs concurrently with itself. A change
// arriving while OnChange is busy is handled once it returns.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	ready    chan string
	done     chan struct{}

	OnChange func(ctx context.Context, path string) error
	OnError  func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	timer        *time.Timer
}

// NewWatcher creates a new file watcher. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, lperrors.Wrap(err, lperrors.CodeInternal, "create file watcher")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

// Watch starts watching a file for changes.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return lperrors.Wrap(err, lperrors.CodeInvalidConfig, "resolve watch path").
			WithContext("path", path)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return lperrors.FileNotFound(absPath)
		}
		return lperrors.Wrap(err, lperrors.CodeInternal, "stat watched file").
			WithContext("path", absPath)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Watch the directory so files replaced by rename are still seen.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return lperrors.Wrap(err, lperrors.CodeInternal, "watch directory").
			WithContext("path", absPath)
	}
	return nil
}

// Paths returns the watched files.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Run starts the watch loop. Blocks until ctx is cancelled, then closes the
// watcher and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	defer w.watcher.Close()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.schedule(absPath)

		case path := <-w.ready:
			w.handleChange(ctx, path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

// schedule (re)starts the debounce timer of a watched file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.files[path]
	if !ok {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) handleChange(ctx context.Context, path string) {
	stat, err := os.Stat(path)
	if err != nil {
		// Mid-replace; the following Create event reschedules.
		if os.IsNotExist(err) {
			return
		}
		w.reportError(path, err)
		return
	}

	w.mu.Lock()
	state := w.files[path]
	if stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		w.mu.Unlock()
		return
	}
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.reportError(path, err)
		}
	}
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, state := range w.files {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.watcher.Close()
}
