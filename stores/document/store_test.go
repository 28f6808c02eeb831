package document

import (
	"context"
	"testing"
	"time"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/model"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	sqliteStore, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_HeaderRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			hdr := &model.BlockHeader{
				Height:     42,
				Hash:       chainhash.Hash{0x01},
				MerkleRoot: chainhash.Hash{0x02},
				Time:       time.Unix(1000, 0).UTC(),
				MedianTime: time.Unix(999, 0).UTC(),
				Bits:       0x1d00ffff,
				Nonce:      7,
				Version:    1,
				TxCount:    3,
			}

			require.NoError(t, store.UpdateHeaders(ctx, []*model.BlockHeader{hdr}))

			byHeight, err := store.GetHeaderByHeight(ctx, 42)
			require.NoError(t, err)
			require.Equal(t, hdr.Hash, byHeight.Hash)
			require.Equal(t, hdr.TxCount, byHeight.TxCount)

			byHash, err := store.GetHeaderByHash(ctx, hdr.Hash)
			require.NoError(t, err)
			require.Equal(t, hdr.Height, byHash.Height)

			_, err = store.GetHeaderByHeight(ctx, 43)
			require.Error(t, err)

			hdr.ChecksumRoot = chainhash.Hash{0x03}
			hdr.ChecksumComputed = true
			require.NoError(t, store.UpdateHeaders(ctx, []*model.BlockHeader{hdr}))

			updated, err := store.GetHeaderByHeight(ctx, 42)
			require.NoError(t, err)
			require.True(t, updated.ChecksumComputed)
			require.Equal(t, hdr.ChecksumRoot, updated.ChecksumRoot)
		})
	}
}

func TestStore_HeaderRangeOrdered(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for h := uint64(0); h < 5; h++ {
				hash := chainhash.Hash{byte(h + 1)}
				require.NoError(t, store.UpdateHeaders(ctx, []*model.BlockHeader{{Height: h, Hash: hash}}))
			}

			headers, err := store.GetHeaderRange(ctx, 1, 4)
			require.NoError(t, err)
			require.Len(t, headers, 3)
			for i, hdr := range headers {
				require.Equal(t, uint64(i+1), hdr.Height)
			}
		})
	}
}

func TestStore_WitnessDeduplication(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			w := &model.BlockWitness{BlockNumber: 10, Identity: [32]byte{0xAA}, Signature: []byte("sig"), PublicKey: []byte("pub")}
			require.NoError(t, store.InsertWitness(ctx, w))
			require.Error(t, store.InsertWitness(ctx, w))

			witnesses, err := store.GetWitnesses(ctx, 10)
			require.NoError(t, err)
			require.Len(t, witnesses, 1)
		})
	}
}

func TestStore_StateAndChainTip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.SetState(ctx, "foo", []byte("bar")))
			data, err := store.GetState(ctx, "foo")
			require.NoError(t, err)
			require.Equal(t, []byte("bar"), data)

			tip := ChainTip{Height: 99, Hash: chainhash.Hash{0x09}}
			require.NoError(t, store.SetChainTip(ctx, tip))
			got, err := store.GetChainTip(ctx)
			require.NoError(t, err)
			require.Equal(t, tip.Height, got.Height)
		})
	}
}
