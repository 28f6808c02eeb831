package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

func newReindexManager(t *testing.T, lastSynced, reindexFrom uint64, fail bool) (*Manager, document.Store, *fakeModule, *Plugin) {
	t.Helper()

	module := &fakeModule{failHook: fail}
	RegisterModuleFactory("reindex-main", func() Module { return module })

	p := newTestPlugin("reindex-plugin", "1.0.0")
	p.Metadata.Main = "reindex-main"
	p.Metadata.Permissions.Hooks = []string{string(HookReindexRequired), string(HookPurgeBlocks)}
	p.Metadata.Lifecycle = &LifecycleHints{ReindexEnabled: true, ReindexFromBlock: reindexFrom}
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

	store := document.NewMemoryStore()
	require.NoError(t, saveLastSyncedBlock(context.Background(), store, p.ID, lastSynced))

	return manager, store, module, p
}

func TestReindex_NoActionWhenAlreadySynced(t *testing.T) {
	manager, store, module, _ := newReindexManager(t, 100, 100, false)

	require.NoError(t, Reindex(context.Background(), store, manager))
	require.Equal(t, int32(0), module.hookCalls)
}

func TestReindex_PurgeWhenAheadOfTarget(t *testing.T) {
	manager, store, module, p := newReindexManager(t, 200, 100, false)

	require.NoError(t, Reindex(context.Background(), store, manager))
	require.Equal(t, int32(2), module.hookCalls) // REINDEX_REQUIRED(PURGE) + PURGE_BLOCKS
	require.Equal(t, uint64(100), p.LastSyncedBlock)
}

func TestReindex_SyncWhenBehindTarget(t *testing.T) {
	manager, store, module, _ := newReindexManager(t, 50, 100, false)

	require.NoError(t, Reindex(context.Background(), store, manager))
	require.Equal(t, int32(1), module.hookCalls) // REINDEX_REQUIRED(SYNC)
}

func TestReindex_AbortsStartupOnFailure(t *testing.T) {
	manager, store, _, _ := newReindexManager(t, 200, 100, true)

	err := Reindex(context.Background(), store, manager)
	require.Error(t, err)
}
