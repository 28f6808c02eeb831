package plugin

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/ulogger"
)

// HookName identifies one of the named plugin lifecycle/chain events a
// plugin may subscribe to via permissions.hooks.
type HookName string

const (
	HookBlockPreProcess  HookName = "BLOCK_PRE_PROCESS"
	HookBlockPostProcess HookName = "BLOCK_POST_PROCESS"
	HookBlockChange      HookName = "BLOCK_CHANGE"
	HookEpochChange      HookName = "EPOCH_CHANGE"
	HookEpochFinalized   HookName = "EPOCH_FINALIZED"
	HookMempoolTx        HookName = "MEMPOOL_TX"
	HookReorg            HookName = "REORG"
	HookReindexRequired  HookName = "REINDEX_REQUIRED"
	HookPurgeBlocks      HookName = "PURGE_BLOCKS"
)

// blockingHooks are waited on synchronously before the caller proceeds;
// every other hook is fanned out without the dispatcher blocking the
// caller on plugin completion.
var blockingHooks = map[HookName]bool{
	HookReorg:           true,
	HookReindexRequired: true,
}

// HookEvent is the payload passed to Module.HandleHook.
type HookEvent struct {
	Name           HookName
	BlockHeight    uint64
	EpochNumber    uint64
	TxID           string
	ReorgFrom      uint64
	ReorgTo        uint64
	Reason         string
	ReindexAction  string // "PURGE" or "SYNC"
	PurgeToBlock   uint64
	SyncFromBlock  uint64
	SyncToBlock    uint64
	PurgeFromBlock uint64
}

// Manager owns the registry, the live worker set, and hook dispatch. It
// implements ibd.ReorgDispatcher by structural typing.
type Manager struct {
	registry *Registry
	workers  map[string]*Worker
	logger   ulogger.Logger
}

// NewManager builds a Manager around an already-populated registry.
func NewManager(registry *Registry, logger ulogger.Logger) *Manager {
	return &Manager{
		registry: registry,
		workers:  make(map[string]*Worker),
		logger:   logger.New("plugin-manager"),
	}
}

// AttachWorker records the live worker for an enabled plugin.
func (m *Manager) AttachWorker(pluginID string, w *Worker) {
	m.workers[pluginID] = w
}

func (m *Manager) detachWorker(pluginID string) {
	delete(m.workers, pluginID)
}

// Dispatch fans event out to every ENABLED plugin that declared the
// corresponding hook permission. Blocking hooks (REORG,
// REINDEX_REQUIRED) wait for every plugin to complete and any failure
// aborts the calling operation; all other hooks fire without the
// dispatcher itself blocking on completion.
func (m *Manager) Dispatch(ctx context.Context, event HookEvent) error {
	var targets []*Plugin
	for _, p := range m.registry.All() {
		if p.Lifecycle.State() != StateEnabled {
			continue
		}
		if !hasPermission(p.Metadata.Permissions.Hooks, string(event.Name)) {
			continue
		}
		targets = append(targets, p)
	}

	if blockingHooks[event.Name] {
		return m.dispatchBlocking(ctx, targets, event)
	}

	go func() {
		// Best-effort background fan-out; failures are logged, not
		// propagated, since the caller already returned.
		bgCtx := context.Background()
		if err := m.dispatchBlocking(bgCtx, targets, event); err != nil {
			m.logger.Warnf("non-blocking hook %s dispatch error: %v", event.Name, err)
		}
	}()
	return nil
}

func (m *Manager) dispatchBlocking(ctx context.Context, targets []*Plugin, event HookEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range targets {
		p := p
		g.Go(func() error {
			w, ok := m.workers[p.ID]
			if !ok {
				return errors.NewServiceNotStartedError("plugin %s: no running worker for hook %s", p.ID, event.Name)
			}
			if err := w.Dispatch(ctx, event); err != nil {
				_ = p.Lifecycle.Transition(StateCrashed)
				m.detachWorker(p.ID)
				return errors.NewPluginCrashedError("plugin %s: hook %s failed", p.ID, event.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func hasPermission(granted []string, want string) bool {
	for _, g := range granted {
		if g == want {
			return true
		}
	}
	return false
}

// DispatchReorg implements ibd.ReorgDispatcher, translating a reorg
// rewind into the blocking REORG hook.
func (m *Manager) DispatchReorg(ctx context.Context, fromHeight, toHeight uint64, reason string) error {
	return m.Dispatch(ctx, HookEvent{Name: HookReorg, ReorgFrom: fromHeight, ReorgTo: toHeight, Reason: reason})
}
