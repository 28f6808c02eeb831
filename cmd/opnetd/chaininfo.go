package main

import (
	"context"
	"sync/atomic"

	"github.com/opnet-chain/opnetd/stores/document"
)

// chainTipCache satisfies wsapi.ChainInfo without the handshake path
// having to block on a store round trip per connection: a background
// subscriber keeps it current, the same change-stream
// document.Store.Subscribe already exposes for this purpose.
type chainTipCache struct {
	chainID string
	height  atomic.Uint64
}

func newChainTipCache(ctx context.Context, store document.Store, chainID string) *chainTipCache {
	c := &chainTipCache{chainID: chainID}

	if tip, err := store.GetChainTip(ctx); err == nil {
		c.height.Store(tip.Height)
	}

	updates, _ := store.Subscribe(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-updates:
				if !ok {
					return
				}
				c.height.Store(h)
			}
		}
	}()

	return c
}

func (c *chainTipCache) ChainTipHeight() uint64 { return c.height.Load() }
func (c *chainTipCache) ChainID() string        { return c.chainID }
