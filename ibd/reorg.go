package ibd

import (
	"context"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/rpcclient"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

// ReorgDispatcher is the plugin runtime's consumed interface: the reorg
// hook is blocking and must complete before any block at or above
// fromHeight is indexed again.
type ReorgDispatcher interface {
	DispatchReorg(ctx context.Context, fromHeight, toHeight uint64, reason string) error
}

// Reorg finds the fork point against the remote chain and coordinates a
// rewind, supplementing the base spec's reorg hook (§4.8) with the
// chain-selection mechanics it depends on but does not itself define.
type Reorg struct {
	store      document.Store
	client     rpcclient.Client
	dispatcher ReorgDispatcher
	logger     ulogger.Logger
}

// NewReorg builds a Reorg coordinator.
func NewReorg(store document.Store, client rpcclient.Client, dispatcher ReorgDispatcher, logger ulogger.Logger) *Reorg {
	return &Reorg{store: store, client: client, dispatcher: dispatcher, logger: logger.New("ibd-reorg")}
}

// FindForkPoint walks backward from the local tip comparing local header
// hashes against the remote chain until it finds the highest height at
// which both agree, returning that height.
func (r *Reorg) FindForkPoint(ctx context.Context, localTipHeight uint64) (uint64, error) {
	for h := localTipHeight; ; h-- {
		localHdr, err := r.store.GetHeaderByHeight(ctx, h)
		if err != nil {
			return 0, errors.NewStorageError("get local header at %d", h, err)
		}

		remoteHashes, err := r.client.GetBlockHashes(ctx, h, 1)
		if err != nil {
			return 0, errors.NewRPCError("get remote hash at %d", h, err)
		}
		if len(remoteHashes) == 1 && remoteHashes[0] != nil && *remoteHashes[0] == localHdr.Hash {
			return h, nil
		}

		if h == 0 {
			return 0, errors.NewProcessingError("no common ancestor found back to genesis")
		}
	}
}

// Rewind dispatches the blocking reorg hook and, only once every plugin
// has acknowledged, advances the chain tip to forkHeight. No block at or
// above forkHeight may be (re-)indexed until this returns successfully.
func (r *Reorg) Rewind(ctx context.Context, forkHeight uint64, reason string) error {
	tip, err := r.store.GetChainTip(ctx)
	if err != nil {
		return err
	}

	if err := r.dispatcher.DispatchReorg(ctx, forkHeight, tip.Height, reason); err != nil {
		return errors.NewProcessingError("reorg hook dispatch failed, aborting rewind", err)
	}

	if forkHeight >= tip.Height {
		return nil
	}

	hdr, err := r.store.GetHeaderByHeight(ctx, forkHeight)
	if err != nil {
		return err
	}

	r.logger.Warnf("rewinding chain tip from %d to %d", tip.Height, forkHeight)
	return r.store.SetChainTip(ctx, document.ChainTip{Height: forkHeight, Hash: hdr.Hash})
}
