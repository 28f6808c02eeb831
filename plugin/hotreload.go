package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opnet-chain/opnetd/ulogger"
)

const debounceWindow = 100 * time.Millisecond

// Loader loads a plugin's file, metadata, and worker; supplied by the
// caller (typically the top-level plugin runtime wiring) so Watcher
// itself stays independent of how a Manager/Registry pair is built.
type Loader interface {
	LoadFile(path string) (*Plugin, error)
	Start(ctx context.Context, p *Plugin) error
	Stop(ctx context.Context, p *Plugin) error
}

// Watcher debounces filesystem events per file and drives add/modify/
// remove through Loader, per spec.md §4.8's hot reload behavior: modify
// validates-then-reloads the plugin and its dependents, restoring each
// one's prior ENABLED/DISABLED state; a failed validation leaves the
// old version running.
type Watcher struct {
	dir      string
	registry *Registry
	loader   Loader
	logger   ulogger.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	watcher *fsnotify.Watcher
}

// NewWatcher builds a Watcher over dir.
func NewWatcher(dir string, registry *Registry, loader Loader, logger ulogger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		registry: registry,
		loader:   loader,
		logger:   logger.New("plugin-hotreload"),
		timers:   make(map[string]*time.Timer),
		watcher:  fsw,
	}, nil
}

// Run consumes fsnotify events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".opnet" {
				continue
			}
			w.debounce(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("plugin watcher error: %v", err)
		}
	}
}

func (w *Watcher) debounce(ctx context.Context, ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[ev.Name]; ok {
		t.Stop()
	}
	w.timers[ev.Name] = time.AfterFunc(debounceWindow, func() {
		w.handleEvent(ctx, ev)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Remove != 0:
		w.handleRemove(ctx, ev.Name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, err := os.Stat(ev.Name); err != nil {
			return
		}
		w.handleAddOrModify(ctx, ev.Name)
	}
}

func (w *Watcher) handleAddOrModify(ctx context.Context, path string) {
	newPlugin, err := w.loader.LoadFile(path)
	if err != nil {
		w.logger.Warnf("hot reload: validate %s failed, leaving prior version running: %v", path, err)
		return
	}

	existing, exists := w.registry.Get(newPlugin.ID)
	if !exists {
		w.registry.Add(newPlugin)
		if err := w.loader.Start(ctx, newPlugin); err != nil {
			w.logger.Warnf("hot reload: start new plugin %s failed: %v", newPlugin.ID, err)
		}
		return
	}

	priorState := existing.Lifecycle.State()

	// Fence dependents before the library itself goes down, so no hook
	// dispatched mid-reload can land on a dependent still wired to the
	// about-to-be-replaced version.
	deps := w.stopDependents(ctx, existing)

	if err := w.loader.Stop(ctx, existing); err != nil {
		w.logger.Warnf("hot reload: stop prior version of %s failed, keeping it running: %v", existing.ID, err)
		w.startDependents(ctx, deps)
		return
	}

	w.registry.Add(newPlugin)
	if priorState == StateEnabled {
		_ = newPlugin.Lifecycle.Transition(StateEnabled)
	} else {
		_ = newPlugin.Lifecycle.Transition(StateDisabled)
	}

	if err := w.loader.Start(ctx, newPlugin); err != nil {
		w.logger.Warnf("hot reload: restart %s failed: %v", newPlugin.ID, err)
	}

	w.startDependents(ctx, deps)
}

// reloadedDependent remembers a dependent's pre-fence lifecycle state so
// it can be restored once the library it depends on is back up.
type reloadedDependent struct {
	plugin     *Plugin
	priorState State
}

// stopDependents disables every dependent of lib, in no particular
// order (they don't depend on each other through lib), recording each
// one's prior state.
func (w *Watcher) stopDependents(ctx context.Context, lib *Plugin) []reloadedDependent {
	var stopped []reloadedDependent
	for _, depID := range lib.Dependents {
		dep, ok := w.registry.Get(depID)
		if !ok {
			continue
		}
		priorState := dep.Lifecycle.State()
		if err := w.loader.Stop(ctx, dep); err != nil {
			w.logger.Warnf("hot reload: stop dependent %s failed: %v", dep.ID, err)
			continue
		}
		stopped = append(stopped, reloadedDependent{plugin: dep, priorState: priorState})
	}
	return stopped
}

// startDependents restarts each previously-fenced dependent, restoring
// whichever of ENABLED/DISABLED it held before the library reload began.
func (w *Watcher) startDependents(ctx context.Context, deps []reloadedDependent) {
	for _, d := range deps {
		if d.priorState == StateEnabled {
			_ = d.plugin.Lifecycle.Transition(StateEnabled)
		} else {
			_ = d.plugin.Lifecycle.Transition(StateDisabled)
		}
		if err := w.loader.Start(ctx, d.plugin); err != nil {
			w.logger.Warnf("hot reload: restart dependent %s failed: %v", d.plugin.ID, err)
		}
	}
}

func (w *Watcher) handleRemove(ctx context.Context, path string) {
	for _, p := range w.registry.All() {
		if p.FilePath == path {
			if err := w.loader.Stop(ctx, p); err != nil {
				w.logger.Warnf("hot reload: stop removed plugin %s failed: %v", p.ID, err)
			}
			return
		}
	}
}
