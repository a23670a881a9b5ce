package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/loader"
	"github.com/bramble-labs/bramble/store"
)

// DefaultWatchDebounce is how long a path must stay quiet before its file
// is reloaded. Editors tend to write files in bursts.
const DefaultWatchDebounce = 500 * time.Millisecond

// WatcherConfig wires the definitions directory watcher.
type WatcherConfig struct {
	// Dir is the directory of tree definition files to mirror.
	Dir string

	// Store is the catalog changed definitions are saved into.
	Store store.Store

	// Bus receives tree.saved and tree.deleted events. Optional.
	Bus bus.EventBus

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Debounce overrides DefaultWatchDebounce when > 0.
	Debounce time.Duration
}

// Watcher mirrors a directory of tree definition files into the catalog.
// Each changed .json or .yaml file is reloaded after a per-path debounce
// window; deleting a file removes the tree it had loaded.
type Watcher struct {
	dir      string
	catalog  store.Store
	bus      bus.EventBus
	logger   *slog.Logger
	debounce time.Duration

	fsw *fsnotify.Watcher
	wg  sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	trees   map[string]string // file path -> tree id it loaded
	started bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher validates the config and returns a watcher ready to Start.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("daemon: watch dir is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("daemon: watcher requires a catalog store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &Watcher{
		dir:      cfg.Dir,
		catalog:  cfg.Store,
		bus:      cfg.Bus,
		logger:   logger,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		trees:    make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// Start loads every definition already in the directory, then watches for
// changes until Stop is called or ctx is canceled. Calling Start twice is
// a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("daemon: creating watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("daemon: watching %s: %w", w.dir, err)
	}
	w.fsw = fsw

	if err := w.syncExisting(ctx); err != nil {
		_ = fsw.Close()
		return err
	}

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop cancels pending reloads and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.mu.Lock()
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.wg.Wait()
	})
}

// TreeID reports the tree id loaded from path, if any.
func (w *Watcher) TreeID(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.trees[path]
	return id, ok
}

func (w *Watcher) syncExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("daemon: reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !isDefinitionFile(path) {
			continue
		}
		w.loadFile(ctx, path)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
				w.scheduleLoad(ctx, event.Name)
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.dropFile(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "err", err)
		}
	}
}

// scheduleLoad debounces per path: the timer resets on every new event so
// the reload happens once the file goes quiet.
func (w *Watcher) scheduleLoad(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.loadFile(ctx, path)
	})
}

func (w *Watcher) loadFile(ctx context.Context, path string) {
	def, err := loader.LoadFile(path)
	if err != nil {
		w.logger.Warn("skipping tree definition", "path", path, "err", err)
		return
	}

	rec, err := w.catalog.Save(ctx, def)
	if err != nil {
		w.logger.Error("saving tree definition", "path", path, "tree_id", def.ID, "err", err)
		return
	}

	w.mu.Lock()
	w.trees[path] = rec.ID
	w.mu.Unlock()

	w.logger.Info("tree definition loaded", "path", path, "tree_id", rec.ID, "version", rec.Version)
	w.publish(bus.NewEvent(bus.EventTreeSaved, "").WithTree(rec.ID).WithPayload("version", rec.Version))
}

func (w *Watcher) dropFile(ctx context.Context, path string) {
	w.mu.Lock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
	id, ok := w.trees[path]
	if ok {
		delete(w.trees, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	if err := w.catalog.Delete(ctx, id, 0); err != nil {
		w.logger.Warn("removing tree for deleted file", "path", path, "tree_id", id, "err", err)
		return
	}
	w.logger.Info("tree removed", "path", path, "tree_id", id)
	w.publish(bus.NewEvent(bus.EventTreeDeleted, "").WithTree(id))
}

func (w *Watcher) publish(event bus.Event) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(event)
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
