package checksum

import (
	"context"
	"testing"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/stretchr/testify/require"
)

type noopProgress struct{ saved []uint64 }

func (n *noopProgress) ShouldSaveCheckpoint(height uint64) bool { return false }
func (n *noopProgress) SaveCheckpoint(ctx context.Context, height uint64) error {
	n.saved = append(n.saved, height)
	return nil
}

func seedHeaders(t *testing.T, store document.Store, count int) {
	t.Helper()
	ctx := context.Background()
	var prevHash *chainhash.Hash
	for h := 0; h < count; h++ {
		hash := chainhash.Hash{byte(h + 1)}
		hdr := &model.BlockHeader{
			Height:            uint64(h),
			Hash:              hash,
			PreviousBlockHash: prevHash,
			MerkleRoot:        chainhash.Hash{byte(h + 100)},
		}
		require.NoError(t, store.UpdateHeaders(ctx, []*model.BlockHeader{hdr}))
		hc := hash
		prevHash = &hc
	}
}

func TestEngine_SeedsFromZeroAtGenesis(t *testing.T) {
	store := document.NewMemoryStore()
	seedHeaders(t, store, 10)

	engine := NewEngine(store, ulogger.TestLogger())
	require.NoError(t, engine.Run(context.Background(), 0, 10, nil))

	hdr, err := store.GetHeaderByHeight(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, hdr.ChecksumComputed)
	require.Equal(t, ZeroHash, hdr.PreviousBlockChecksum)
}

func TestEngine_ChainedAndDeterministic(t *testing.T) {
	store := document.NewMemoryStore()
	seedHeaders(t, store, 10)

	engine := NewEngine(store, ulogger.TestLogger())
	require.NoError(t, engine.Run(context.Background(), 0, 10, nil))

	h1, err := store.GetHeaderByHeight(context.Background(), 1)
	require.NoError(t, err)
	h0, err := store.GetHeaderByHeight(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, h0.ChecksumRoot, h1.PreviousBlockChecksum)

	// Recomputing from scratch over the same range yields byte-identical
	// checksum roots (universal invariant from spec §8).
	store2 := document.NewMemoryStore()
	seedHeaders(t, store2, 10)
	engine2 := NewEngine(store2, ulogger.TestLogger())
	require.NoError(t, engine2.Run(context.Background(), 0, 10, nil))

	h1b, err := store2.GetHeaderByHeight(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, h1.ChecksumRoot, h1b.ChecksumRoot)
}

func TestEngine_ResumeFromCheckpointMatchesColdRun(t *testing.T) {
	coldStore := document.NewMemoryStore()
	seedHeaders(t, coldStore, 100)
	coldEngine := NewEngine(coldStore, ulogger.TestLogger())
	require.NoError(t, coldEngine.Run(context.Background(), 0, 100, nil))

	resumedStore := document.NewMemoryStore()
	seedHeaders(t, resumedStore, 100)
	resumedEngine := NewEngine(resumedStore, ulogger.TestLogger())
	require.NoError(t, resumedEngine.Run(context.Background(), 0, 42, nil))
	require.NoError(t, resumedEngine.Run(context.Background(), 42, 100, nil))

	for h := uint64(0); h < 100; h++ {
		want, err := coldStore.GetHeaderByHeight(context.Background(), h)
		require.NoError(t, err)
		got, err := resumedStore.GetHeaderByHeight(context.Background(), h)
		require.NoError(t, err)
		require.Equal(t, want.ChecksumRoot, got.ChecksumRoot, "height %d", h)
	}
}

// Open Question (d): an empty prev_checksum feeds an EMPTY bytes value
// into the receipt tree, not 32 zero bytes.
func TestComputeReceiptRoot_EmptyPrevChecksumUsesEmptyBytesNotZeroBytes(t *testing.T) {
	emptyRoot, err := computeReceiptRoot(ZeroHash)
	require.NoError(t, err)

	var thirtyTwoZeroBytes chainhash.Hash
	zeroBytesLeaf0 := receiptLeaf(fakeAddress, maxKey, thirtyTwoZeroBytes[:])
	zeroBytesLeaf1 := receiptLeaf(fakeAddress, maxKeyMinusOne, []byte{versionMarkerValue})
	zeroBytesRoot, _ := BuildTree([]chainhash.Hash{zeroBytesLeaf0, zeroBytesLeaf1})

	require.NotEqual(t, zeroBytesRoot, emptyRoot)
}

// Open Question (c): the version marker byte is load-bearing.
func TestComputeReceiptRoot_VersionMarkerIsLoadBearing(t *testing.T) {
	root, err := computeReceiptRoot(chainhash.Hash{0xAB})
	require.NoError(t, err)

	leaf0 := receiptLeaf(fakeAddress, maxKey, chainhash.Hash{0xAB}[:])
	wrongLeaf1 := receiptLeaf(fakeAddress, maxKeyMinusOne, []byte{0x02})
	wrongRoot, _ := BuildTree([]chainhash.Hash{leaf0, wrongLeaf1})

	require.NotEqual(t, wrongRoot, root)
}

func TestBuildTree_VerifyProofRoundTrip(t *testing.T) {
	leaves := []chainhash.Hash{{1}, {2}, {3}, {4}, {5}, {6}}
	root, proofs := BuildTree(leaves)

	for i, leaf := range leaves {
		require.True(t, VerifyProof(leaf, i, proofs[i], root), "leaf %d", i)
	}
}
