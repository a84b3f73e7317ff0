// Package watcher watches scene source files on disk and forwards their
// contents to the hot-reload scheduler. Debouncing is not done here: the
// scheduler owns the debounce timer; the watcher only filters and forwards.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"sceneforge/internal/logging"
)

// FileFilter determines if a file should be forwarded.
type FileFilter func(path string) bool

// ChangeHandler receives a changed file's path and content.
type ChangeHandler func(path string, content string)

// SourceWatcher watches for source file changes.
type SourceWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler
}

// New creates a source watcher.
func New(logger logging.Logger) (*SourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SourceWatcher{
		watcher: fsw,
		logger:  logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter; a file is forwarded only if every filter
// accepts it.
func (w *SourceWatcher) AddFilter(filter FileFilter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filters = append(w.filters, filter)
}

// AddHandler adds a change handler.
func (w *SourceWatcher) AddHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// AddPath adds a file or directory to watch.
func (w *SourceWatcher) AddPath(path string) error {
	return w.watcher.Add(filepath.Clean(path))
}

// AddRecursive adds a directory and all subdirectories to watch.
func (w *SourceWatcher) AddRecursive(root string) error {
	return filepath.Walk(filepath.Clean(root), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start runs the watch loop until the context is cancelled.
func (w *SourceWatcher) Start(ctx context.Context) {
	go w.watchLoop(ctx)
}

// Stop closes the underlying watcher.
func (w *SourceWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *SourceWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "watch error")
		}
	}
}

func (w *SourceWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.RLock()
	filters := w.filters
	handlers := w.handlers
	w.mu.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	content, err := os.ReadFile(event.Name)
	if err != nil {
		w.logger.Warn(ctx, err, "reading changed file", "path", event.Name)
		return
	}

	for _, handler := range handlers {
		handler(event.Name, string(content))
	}
}

// Common file filters.

// SceneSourceFilter accepts the source extensions of the supported
// frameworks.
func SceneSourceFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".jsx", ".ts", ".tsx", ".html":
		return true
	default:
		return false
	}
}

// NoHiddenFilter rejects dotfiles and anything under a dot directory.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return false
		}
	}
	return true
}

// NoNodeModulesFilter rejects vendored dependencies.
func NoNodeModulesFilter(path string) bool {
	return !strings.Contains(filepath.ToSlash(path), "/node_modules/")
}
