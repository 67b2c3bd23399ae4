package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of file events triggers a reload
const DefaultDebounce = 200 * time.Millisecond

// FileWatcher watches a definitions directory and triggers reloads.
// Bursts of events (editors write, rename and chmod in quick succession)
// collapse into a single reload.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	dir      string
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileWatcher creates a watcher for dir. A zero interval uses DefaultDebounce.
func NewFileWatcher(dir string, interval time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if interval <= 0 {
		interval = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		logger:   logger,
		dir:      dir,
		debounce: NewDebouncer(interval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onReload
// after every debounced burst of definition file changes.
func (fw *FileWatcher) Watch(ctx context.Context, onReload func() error) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	fw.running = true
	fw.mu.Unlock()

	defer close(fw.doneCh)

	if err := fw.addDirectory(fw.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}

	fw.logger.Info("table watcher started", "dir", fw.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-fw.stopCh:
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !shouldProcessEvent(event) {
				continue
			}

			// New subdirectories need their own watch
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.addDirectory(event.Name); err != nil {
						fw.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}

			fw.logger.Debug("table file changed", "path", event.Name, "op", event.Op.String())

			fw.debounce.Trigger(func() {
				if err := onReload(); err != nil {
					fw.logger.Debug("reload after file change failed", "error", err)
				}
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.Error("table watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and cancels any pending reload
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	running := fw.running
	fw.running = false
	fw.mu.Unlock()

	if running {
		close(fw.stopCh)
		<-fw.doneCh
	}
	fw.debounce.Stop()

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (fw *FileWatcher) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// shouldProcessEvent ignores chmod, hidden files and unrelated extensions.
// Directory creations pass so they can be watched.
func shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	case "":
		return event.Op&fsnotify.Create == fsnotify.Create
	}
	return false
}

// Debouncer runs only the last callback of a burst, after a quiet period
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any callback still pending
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			callback()
		}
	})
}

// Stop cancels the pending callback; later triggers are ignored
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
