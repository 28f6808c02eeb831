package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
)

func TestBlockchainAPI_GetBlockByHeight_PermissionEnforced(t *testing.T) {
	store := document.NewMemoryStore()
	require.NoError(t, store.UpdateHeaders(context.Background(), []*model.BlockHeader{{Height: 5}}))

	p := newTestPlugin("plugin-a", "1.0.0")
	api := NewBlockchainAPI(p, store)

	_, err := api.GetBlockByHeight(context.Background(), 5)
	require.Error(t, err)

	p.Metadata.Permissions.Blockchain = []string{areaGetBlock}
	hdr, err := api.GetBlockByHeight(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), hdr.Height)
}

func TestBlockchainAPI_GetContractEvents_NotImplemented(t *testing.T) {
	store := document.NewMemoryStore()
	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Permissions.Blockchain = []string{areaGetContractEvents}

	api := NewBlockchainAPI(p, store)
	_, err := api.GetContractEvents(context.Background(), "addr")
	require.Error(t, err)
}

func TestBlockchainAPI_GetBlockRange_CapsAtMax(t *testing.T) {
	store := document.NewMemoryStore()
	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Permissions.Blockchain = []string{areaGetBlockRange}

	api := NewBlockchainAPI(p, store)
	_, err := api.GetBlockRange(context.Background(), 0, MaxBlockRange+1)
	require.Error(t, err)
}

func TestBlockchainAPI_HasBlock(t *testing.T) {
	store := document.NewMemoryStore()
	require.NoError(t, store.UpdateHeaders(context.Background(), []*model.BlockHeader{{Height: 5, Hash: chainhash.Hash{1}}}))

	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Permissions.Blockchain = []string{areaHasBlock}

	api := NewBlockchainAPI(p, store)
	ok, err := api.HasBlock(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = api.HasBlock(context.Background(), 999)
	require.NoError(t, err)
	require.False(t, ok)
}
