package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/opnet-chain/opnetd/errors"
)

// Module is the behavior a plugin's bytecode resolves to at runtime.
// Since no embeddable bytecode VM exists anywhere in the retrieved
// example pack, and fabricating one is out of scope, bytecode execution
// is opaque beyond validation/checksum/signature: a plugin's actual
// behavior is provided by a Go-native constructor registered under the
// plugin's metadata.Main name (the same "compiled-in plugin" pattern
// widely used by Go tools that ship a fixed plugin set - e.g.
// Prometheus exporters, Telegraf inputs - rather than true dynamic
// code loading).
type Module interface {
	Load(ctx context.Context, config map[string]string, networkInfo NetworkInfo) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Unload(ctx context.Context) error
	HandleHook(ctx context.Context, event HookEvent) error
}

// NetworkInfo is the subset of node/network identity passed to
// Module.Load.
type NetworkInfo struct {
	ChainID      string
	NetworkName  string
	NodeVersion  string
}

// ModuleFactory constructs a Module instance for one plugin load.
type ModuleFactory func() Module

var (
	factoryMu sync.RWMutex
	factories = make(map[string]ModuleFactory)
)

// RegisterModuleFactory associates a metadata.Main name with the
// constructor that provides its behavior. Called from an init() in the
// package that implements a given plugin's native module.
func RegisterModuleFactory(main string, factory ModuleFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[main] = factory
}

func lookupFactory(main string) (ModuleFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[main]
	return f, ok
}

// Worker is one plugin's execution unit. Each call runs on its own
// goroutine under a wall-clock budget derived from permissions.threading
// (MaxCPUPercent x 50ms, or 5s when unset); a panic or an overrun is
// returned as a PluginCrashed error and marks the worker crashed. Calls
// are not queued or serialized, CPU time is not measured, and
// MaxMemoryMB is stored but not enforced or read.
type Worker struct {
	pluginID string
	module   Module
	limits   ThreadingLimits
	crashed  chan struct{}
	once     sync.Once
}

// NewWorker resolves plugin's module factory and builds a Worker
// around it.
func NewWorker(pluginID, mainName string, limits ThreadingLimits) (*Worker, error) {
	factory, ok := lookupFactory(mainName)
	if !ok {
		return nil, errors.NewNotFoundError("plugin %s: no registered module factory for main %q", pluginID, mainName)
	}
	return &Worker{
		pluginID: pluginID,
		module:   factory(),
		limits:   limits,
		crashed:  make(chan struct{}),
	}, nil
}

func (w *Worker) budget() time.Duration {
	if w.limits.MaxCPUPercent <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.limits.MaxCPUPercent) * 50 * time.Millisecond
}

// run executes fn under the worker's time budget, converting a panic or
// deadline overrun into a crash signal rather than letting it take down
// the node process.
func (w *Worker) run(ctx context.Context, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.budget())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.NewPluginCrashedError("plugin %s: worker panic: %v", w.pluginID, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = errors.NewPluginCrashedError("plugin %s: worker exceeded time budget", w.pluginID)
	}

	if err != nil {
		w.once.Do(func() { close(w.crashed) })
	}
	return err
}

// Load runs Module.Load under the worker's budget.
func (w *Worker) Load(ctx context.Context, config map[string]string, info NetworkInfo) error {
	return w.run(ctx, func(ctx context.Context) error { return w.module.Load(ctx, config, info) })
}

// Enable runs Module.Enable under the worker's budget.
func (w *Worker) Enable(ctx context.Context) error {
	return w.run(ctx, w.module.Enable)
}

// Disable runs Module.Disable under the worker's budget.
func (w *Worker) Disable(ctx context.Context) error {
	return w.run(ctx, w.module.Disable)
}

// Unload runs Module.Unload under the worker's budget.
func (w *Worker) Unload(ctx context.Context) error {
	return w.run(ctx, w.module.Unload)
}

// Dispatch runs Module.HandleHook under the worker's budget.
func (w *Worker) Dispatch(ctx context.Context, event HookEvent) error {
	return w.run(ctx, func(ctx context.Context) error { return w.module.HandleHook(ctx, event) })
}

// Crashed reports whether this worker has ever crashed; it never
// resets, since recovery creates a fresh Worker via the manager.
func (w *Worker) Crashed() bool {
	select {
	case <-w.crashed:
		return true
	default:
		return false
	}
}
