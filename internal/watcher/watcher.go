// Package watcher turns file system changes in a workspace into debounced
// sync triggers.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"todosync/internal/utils"
)

// DefaultDebounceDuration is the default quiet window after the last change.
const DefaultDebounceDuration = 1 * time.Second

// Config holds file watcher configuration.
type Config struct {
	Paths            []string      // Files or directories to watch
	Recursive        bool          // Also watch subdirectories of directory paths
	DebounceDuration time.Duration // Changes within this window fire once
	OnChange         func()        // Called after the debounce window

	// Ignore reports whether a changed path should be dropped.
	// Default: hidden files and directories (.git, editor swap files).
	Ignore func(path string) bool
}

// Watcher monitors file system changes and triggers the change callback.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// New creates a new Watcher instance.
func New(cfg Config) (*Watcher, error) {
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}
	if cfg.Ignore == nil {
		cfg.Ignore = IsHidden
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// IsHidden reports whether any element of path starts with a dot.
func IsHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// Start begins watching the configured paths. Missing paths are skipped.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	w.mu.Unlock()

	for _, path := range w.cfg.Paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", path, err)
		}
		if info.IsDir() && w.cfg.Recursive {
			if err := w.addTree(path); err != nil {
				return err
			}
			continue
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch path %q: %w", path, err)
		}
	}

	go w.eventLoop()
	return nil
}

// addTree watches root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path, root) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch path %q: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return w.cfg.Ignore(rel)
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.fsw.Close()
	w.mu.Unlock()
}

func (w *Watcher) eventLoop() {
	defer close(w.done)

	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.cfg.Ignore(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && w.cfg.Recursive {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			utils.Debugf("[Watch] %s %s", event.Op, event.Name)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.cfg.DebounceDuration, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Warnf("[Watch] %v", err)

		case <-fire:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}
