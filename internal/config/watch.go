package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Watcher re-reads agents.disabled whenever the watched config file is
// written or replaced, so toggling a kind takes effect for the next run.
type Watcher struct {
	path     string
	onChange func([]models.AgentKind)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewWatcher starts watching path. onChange receives the disabled kinds
// after each successful re-read. The directory is watched rather than the
// file, so editors that replace the file on save are still seen.
func NewWatcher(path string, onChange func([]models.AgentKind)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] WARNING: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		// Partial writes are common; the next event re-reads.
		log.Printf("[config] WARNING: reload %s: %v", w.path, err)
		return
	}
	kinds := cfg.Agents.DisabledKinds()
	for _, k := range kinds {
		if !k.Valid() {
			log.Printf("[config] WARNING: ignoring reload: unknown agent kind %q", k)
			return
		}
	}
	if w.onChange != nil {
		w.onChange(kinds)
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		<-w.stopped
	})
	return err
}
