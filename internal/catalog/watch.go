package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period a file must see before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads catalogued files when they change on disk.
type Watcher struct {
	// Changes receives one event per debounced reload.
	Changes <-chan Event

	cat      *Catalog
	files    map[string]string // cleaned absolute path -> source key
	debounce time.Duration

	changes chan Event
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newWatcher(cat *Catalog, sources []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	files := make(map[string]string, len(sources))
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", src, err)
		}
		files[filepath.Clean(abs)] = src
	}
	ch := make(chan Event, 16)
	return &Watcher{
		Changes:  ch,
		cat:      cat,
		files:    files,
		debounce: debounce,
		changes:  ch,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}, nil
}

// NewWatcher watches the directories containing sources. Directories are
// watched rather than files so editors that replace a file on save are
// still seen.
func NewWatcher(cat *Catalog, sources []string, debounce time.Duration) (*Watcher, error) {
	w, err := newWatcher(cat, sources, debounce)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for abs := range w.files {
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	w.fsw = fsw
	return w, nil
}

// Start begins processing file events in the background.
func (w *Watcher) Start() {
	go w.loop(w.fsw.Events, w.fsw.Errors)
}

// Stop halts the watcher and closes Changes. It must follow Start.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			w.fsw.Close()
		}
		<-w.done
	})
}

func (w *Watcher) loop(events <-chan fsnotify.Event, errs <-chan error) {
	defer close(w.done)
	defer close(w.changes)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			src, watched := w.files[filepath.Clean(event.Name)]
			if !watched {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				pending[src] = time.Now()
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.cat.log.Warn("watcher error: %v", err)

		case now := <-ticker.C:
			for src, t := range pending {
				if now.Sub(t) < w.debounce {
					continue
				}
				delete(pending, src)
				ev, ok := w.refresh(src)
				if !ok {
					continue
				}
				select {
				case w.changes <- ev:
				case <-w.stop:
					return
				}
			}
		}
	}
}

// refresh reloads src, or drops it from the catalog when the file is gone.
// It reports false when there is nothing to announce.
func (w *Watcher) refresh(src string) (Event, bool) {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return w.cat.remove(src)
	}
	return w.cat.Reload(src), true
}
