// Package watch reports changes to a context's migration sources.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/logging"
)

// DefaultDebounce is the quiet period before a batch of events is delivered
const DefaultDebounce = 300 * time.Millisecond

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher monitors the candidate migration directories of one context and
// calls onChange with the changed .cs paths once events have been quiet for
// the debounce period. Directories created after Start are picked up.
type Watcher struct {
	root        string
	contextName string
	debounce    time.Duration
	onChange    func(paths []string)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event time
	watched map[string]bool
}

// New creates a Watcher for contextName under the project root
func New(root, contextName string, onChange func(paths []string), opts ...Option) *Watcher {
	w := &Watcher{
		root:        root,
		contextName: contextName,
		debounce:    DefaultDebounce,
		onChange:    onChange,
		done:        make(chan struct{}),
		pending:     make(map[string]time.Time),
		watched:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start begins watching. The project root is always watched so that a
// Migrations folder created later is noticed.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	w.fsWatcher = fsw

	if err := w.add(w.root); err != nil {
		_ = fsw.Close()
		return err
	}

	w.addCandidates()

	w.wg.Add(1)

	go w.loop()

	return nil
}

// Run starts the watcher and blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	return w.Stop()
}

// Stop terminates the watcher. It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}

	return nil
}

// Watched returns the directories currently being watched
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.watched))
	for d := range w.watched {
		dirs = append(dirs, d)
	}

	slices.Sort(dirs)

	return dirs
}

func (w *Watcher) add(dir string) error {
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watched[dir] {
		return nil
	}

	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.watched[dir] = true
	logging.WithField("dir", dir).Debug("Watching directory")

	return nil
}

// addCandidates watches every candidate directory that exists now
func (w *Watcher) addCandidates() {
	for _, dir := range w.candidates() {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := w.add(dir); err != nil {
				logging.WithError(err).Warn("Failed to watch migrations directory")
			}
		}
	}
}

func (w *Watcher) candidates() []string {
	dirs := catalog.CandidateDirs(w.root, w.contextName)
	for i := range dirs {
		dirs[i] = filepath.Clean(dirs[i])
	}

	return dirs
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(max(w.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

			logging.WithError(err).Warn("File watcher error")

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) && slices.Contains(w.candidates(), path) {
		w.addCandidates()
		return
	}

	if !isSource(path) || !slices.Contains(w.candidates(), filepath.Dir(path)) {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush delivers the pending batch once no event arrived for the debounce period
func (w *Watcher) flush() {
	w.mu.Lock()

	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	var latest time.Time
	for _, t := range w.pending {
		if t.After(latest) {
			latest = t
		}
	}

	if time.Since(latest) < w.debounce {
		w.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}

	clear(w.pending)
	w.mu.Unlock()

	slices.Sort(paths)
	logging.WithField("files", len(paths)).Debug("Migration sources changed")
	w.onChange(paths)
}

func isSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), catalog.SourceExt)
}
