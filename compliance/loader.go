package compliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/prospectmesh/logging"
	"gopkg.in/yaml.v3"
)

// File is the on-disk suppression list document.
type File struct {
	Suppressions []Entry `yaml:"suppressions"`
}

// ParseEntries decodes a YAML (or JSON) suppression document.
func ParseEntries(data []byte) ([]Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse suppression list: %w", err)
	}
	for i, e := range f.Suppressions {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("suppression entry %d: %w", i, err)
		}
	}
	return f.Suppressions, nil
}

// LoadFile reads and parses a suppression document.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suppression file %s: %w", path, err)
	}
	return ParseEntries(data)
}

// SaveFile writes entries to path, replacing the file atomically.
func SaveFile(path string, entries []Entry) error {
	data, err := yaml.Marshal(File{Suppressions: entries})
	if err != nil {
		return fmt.Errorf("failed to encode suppression list: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write suppression file %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write suppression file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write suppression file %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace suppression file %s: %w", path, err)
	}
	return nil
}

// Watcher reloads a suppression file into an Engine whenever it changes.
type Watcher struct {
	path   string
	engine *Engine
	logger logging.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}

	// OnReload is invoked after every reload attempt.
	OnReload func(err error)
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(engine *Engine, path string, logger logging.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Watcher{path: absPath, engine: engine, logger: logger}, nil
}

// Reload replaces the engine entries with the file contents. A file that
// fails to parse leaves the current list in place.
func (w *Watcher) Reload() error {
	entries, err := LoadFile(w.path)
	if err == nil {
		err = w.engine.Replace(entries)
	}
	if err != nil {
		w.logger.Warn("suppression reload failed path=%s error=%v", w.path, err)
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
	return err
}

// Start watches the file's directory until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory; editors replace files rather than write in place.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})

	go w.loop(ctx, watcher, w.done)

	w.logger.Info("watching suppression file path=%s", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() { _ = w.Reload() })

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("suppression watcher error: %v", err)
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}
