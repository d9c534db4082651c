// Package watch invalidates file-backed sources when their files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// DefaultDebounce coalesces bursts of events for one file.
const DefaultDebounce = 100 * time.Millisecond

// Invalidator drops everything cached for a source.
type Invalidator interface {
	Invalidate(ctx context.Context, source string) error
}

// Watcher maps watched files to the sources reading them.
type Watcher struct {
	inv      Invalidator
	files    map[string][]string // absolute path → source names
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher for the local files of sources. Remote locations
// and glob patterns are skipped.
func New(inv Invalidator, sources []core.SourceDescriptor, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	files := make(map[string][]string)
	for _, s := range sources {
		p := s.LocalPath()
		if p == "" || strings.Contains(s.Location, "://") || strings.ContainsAny(p, "*?[") {
			continue
		}
		files[p] = append(files[p], s.Name)
	}
	return &Watcher{
		inv:      inv,
		files:    files,
		debounce: DefaultDebounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// SetDebounce changes the debounce interval.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run watches until ctx is cancelled. Directories are watched rather than
// files so replacements by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.files) == 0 {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs := make(map[string]bool)
	for p := range w.files {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// Don't fail - the remaining sources are still watched
			w.logger.Error("failed to watch directory", "dir", dir, "error", err)
		}
	}
	w.logger.Debug("watching source files", "files", len(w.files), "dirs", len(dirs))

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			sources, ok := w.files[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			for _, src := range sources {
				w.schedule(ctx, src, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// schedule debounces the invalidation of one source.
func (w *Watcher) schedule(ctx context.Context, source, file string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[source]; ok {
		t.Stop()
	}
	w.timers[source] = time.AfterFunc(w.debounce, func() {
		w.logger.Debug("source file changed, invalidating", "source", source, "file", file)
		if err := w.inv.Invalidate(ctx, source); err != nil {
			w.logger.Error("invalidate failed", "source", source, "error", err)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
}
