package plugin

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-chain/opnetd/ulogger"
)

type fakeModule struct {
	hookCalls int32
	failHook  bool
}

func (f *fakeModule) Load(context.Context, map[string]string, NetworkInfo) error { return nil }
func (f *fakeModule) Enable(context.Context) error                              { return nil }
func (f *fakeModule) Disable(context.Context) error                             { return nil }
func (f *fakeModule) Unload(context.Context) error                              { return nil }
func (f *fakeModule) HandleHook(ctx context.Context, event HookEvent) error {
	atomic.AddInt32(&f.hookCalls, 1)
	if f.failHook {
		return require.AnError
	}
	return nil
}

func newTestManagerWithPlugin(t *testing.T, hookName HookName, fail bool) (*Manager, *fakeModule, *Plugin) {
	t.Helper()

	module := &fakeModule{failHook: fail}
	RegisterModuleFactory("test-main-"+string(hookName), func() Module { return module })

	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Main = "test-main-" + string(hookName)
	p.Metadata.Permissions.Hooks = []string{string(hookName)}
	require.NoError(t, p.Lifecycle.Transition(StateValidated))
	require.NoError(t, p.Lifecycle.Transition(StateLoading))
	require.NoError(t, p.Lifecycle.Transition(StateLoaded))
	require.NoError(t, p.Lifecycle.Transition(StateEnabled))

	registry := NewRegistry()
	registry.Add(p)

	worker, err := NewWorker(p.ID, p.Metadata.Main, ThreadingLimits{})
	require.NoError(t, err)

	manager := NewManager(registry, ulogger.New("test"))
	manager.AttachWorker(p.ID, worker)

	return manager, module, p
}

func TestManager_DispatchBlockingHookWaitsForCompletion(t *testing.T) {
	manager, module, _ := newTestManagerWithPlugin(t, HookReorg, false)

	err := manager.Dispatch(context.Background(), HookEvent{Name: HookReorg, ReorgFrom: 1, ReorgTo: 10})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&module.hookCalls))
}

func TestManager_DispatchBlockingHookFailurePropagatesAndCrashesPlugin(t *testing.T) {
	manager, _, p := newTestManagerWithPlugin(t, HookReindexRequired, true)

	err := manager.Dispatch(context.Background(), HookEvent{Name: HookReindexRequired})
	require.Error(t, err)
	require.Equal(t, StateCrashed, p.Lifecycle.State())
}

func TestManager_DispatchReorgImplementsReorgDispatcher(t *testing.T) {
	manager, module, _ := newTestManagerWithPlugin(t, HookReorg, false)

	err := manager.DispatchReorg(context.Background(), 5, 10, "fork detected")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&module.hookCalls))
}

func TestManager_SkipsPluginsWithoutPermission(t *testing.T) {
	manager, module, p := newTestManagerWithPlugin(t, HookBlockChange, false)
	p.Metadata.Permissions.Hooks = nil // revoke permission

	err := manager.Dispatch(context.Background(), HookEvent{Name: HookBlockChange})
	require.NoError(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&module.hookCalls))
}
