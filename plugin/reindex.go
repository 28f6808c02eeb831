package plugin

import (
	"context"
	"fmt"
	"math"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/stores/document"
)

const lastSyncedBlockStateKeyPrefix = "plugin_last_synced_block_"

// Reindex runs the startup reindex protocol for every enabled plugin
// with reindex_enabled set, per spec.md §4.8's three-branch algorithm.
// Any plugin returning failure aborts node startup.
func Reindex(ctx context.Context, store document.Store, manager *Manager) error {
	for _, p := range manager.registry.All() {
		if p.Lifecycle.State() != StateEnabled {
			continue
		}
		if p.Metadata.Lifecycle == nil || !p.Metadata.Lifecycle.ReindexEnabled {
			continue
		}

		if err := reindexOne(ctx, store, manager, p); err != nil {
			return errors.NewProcessingError("plugin %s: reindex failed, aborting startup", p.ID, err)
		}
	}
	return nil
}

func reindexOne(ctx context.Context, store document.Store, manager *Manager, p *Plugin) error {
	reindexFrom := p.Metadata.Lifecycle.ReindexFromBlock
	lastSynced, err := loadLastSyncedBlock(ctx, store, p.ID)
	if err != nil {
		return err
	}
	p.LastSyncedBlock = lastSynced

	switch {
	case lastSynced == reindexFrom:
		return nil

	case lastSynced > reindexFrom:
		if err := manager.dispatchToOne(ctx, p, HookEvent{
			Name:          HookReindexRequired,
			ReindexAction: "PURGE",
			PurgeToBlock:  reindexFrom,
		}); err != nil {
			return err
		}
		if err := manager.dispatchToOne(ctx, p, HookEvent{
			Name:           HookPurgeBlocks,
			PurgeFromBlock: reindexFrom,
			PurgeToBlock:   math.MaxUint64,
		}); err != nil {
			return err
		}
		p.LastSyncedBlock = reindexFrom
		return saveLastSyncedBlock(ctx, store, p.ID, reindexFrom)

	default: // lastSynced < reindexFrom
		return manager.dispatchToOne(ctx, p, HookEvent{
			Name:          HookReindexRequired,
			ReindexAction: "SYNC",
			SyncFromBlock: lastSynced,
			SyncToBlock:   reindexFrom,
		})
	}
}

// dispatchToOne runs the blocking hook against a single plugin, used by
// the reindex protocol which operates per-plugin rather than as a
// broadcast fan-out.
func (m *Manager) dispatchToOne(ctx context.Context, p *Plugin, event HookEvent) error {
	return m.dispatchBlocking(ctx, []*Plugin{p}, event)
}

func loadLastSyncedBlock(ctx context.Context, store document.Store, pluginID string) (uint64, error) {
	data, err := store.GetState(ctx, lastSyncedBlockStateKeyPrefix+pluginID)
	if err != nil {
		return 0, errors.NewStorageError("load last_synced_block for plugin %s", pluginID, err)
	}
	if len(data) == 0 {
		return 0, nil
	}
	var height uint64
	if _, err := fmt.Sscanf(string(data), "%d", &height); err != nil {
		return 0, errors.NewStorageError("parse last_synced_block for plugin %s", pluginID, err)
	}
	return height, nil
}

func saveLastSyncedBlock(ctx context.Context, store document.Store, pluginID string, height uint64) error {
	return store.SetState(ctx, lastSyncedBlockStateKeyPrefix+pluginID, []byte(fmt.Sprintf("%d", height)))
}
