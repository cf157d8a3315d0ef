package mediabank

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce window before a rescan after a burst of file events.
const watchDebounce = 250 * time.Millisecond

// OnThemesChanged is invoked with a freshly scanned theme set after
// the watched tree changes. Callers typically rebuild their bank from
// the new set.
type OnThemesChanged func(ThemeSet)

// ThemeWatcher monitors a theme root directory and rescans it into a
// new ThemeSet when media files or theme directories come and go.
type ThemeWatcher struct {
	root     string
	log      *slog.Logger
	onChange OnThemesChanged

	mu      sync.RWMutex
	set     ThemeSet
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	started bool
	stop    sync.Once
}

// NewThemeWatcher scans root once and prepares a watcher over it and
// its theme subdirectories. Call Start to begin receiving changes.
func NewThemeWatcher(root string, onChange OnThemesChanged, log *slog.Logger) (*ThemeWatcher, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	set, err := ScanThemeSet(root)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("theme watcher: %w", err)
	}

	w := &ThemeWatcher{
		root:     root,
		log:      log,
		onChange: onChange,
		set:      set,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	return w, nil
}

// ThemeSet returns the most recently scanned set.
func (w *ThemeWatcher) ThemeSet() ThemeSet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.set
}

// Start begins watching. It returns once the watch paths are
// registered; events are handled on a background goroutine until Stop.
func (w *ThemeWatcher) Start() error {
	if err := w.addWatchPaths(); err != nil {
		return err
	}
	w.log.Info("watching theme root", "root", w.root)
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.loop()
	return nil
}

func (w *ThemeWatcher) addWatchPaths() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("theme watcher: %w", err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("theme watcher: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.watcher.Add(filepath.Join(w.root, e.Name())); err != nil {
				w.log.Warn("watch theme dir failed", "dir", e.Name(), "error", err)
			}
		}
	}
	return nil
}

func (w *ThemeWatcher) loop() {
	defer close(w.done)

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isRelevantThemeEvent(event) {
				continue
			}
			w.log.Debug("theme tree changed", "op", event.Op.String(), "name", event.Name)

			// New theme directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.log.Warn("watch new theme dir failed", "dir", event.Name, "error", err)
					}
				}
			}

			// Bursts of events collapse into one rescan.
			if pending == nil {
				pending = time.NewTimer(watchDebounce)
				pendingC = pending.C
			} else {
				pending.Reset(watchDebounce)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			w.rescan()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("theme watcher error", "error", err)
		}
	}
}

func (w *ThemeWatcher) rescan() {
	set, err := ScanThemeSet(w.root)
	if err != nil {
		w.log.Warn("theme rescan failed", "error", err)
		return
	}

	w.mu.Lock()
	w.set = set
	w.mu.Unlock()

	w.log.Info("theme set rescanned", "themes", len(set.Themes))
	if w.onChange != nil {
		w.onChange(set)
	}
}

// Stop halts the watch loop and releases fsnotify resources.
func (w *ThemeWatcher) Stop() {
	w.stop.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.mu.RLock()
		started := w.started
		w.mu.RUnlock()
		if started {
			<-w.done
		}
	})
}

// isRelevantThemeEvent filters for events that change theme contents.
func isRelevantThemeEvent(e fsnotify.Event) bool {
	return e.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0
}
