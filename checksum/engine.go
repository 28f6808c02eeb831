// Package checksum implements the per-block checksum chain: a strictly
// sequential computation of each block's checksum_root, seeded from its
// predecessor, with a preloaded header cache and batched writes.
package checksum

import (
	"context"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/ordishs/gocore"
)

// ZeroHash seeds the checksum chain at genesis: prev_checksum for height 0.
var ZeroHash = chainhash.Hash{}

// emptyStorageRoot is the canonical storage-root constant used for every
// block the IBD checksum path processes (pre-OP_NET blocks carry no
// contract state).
var emptyStorageRoot = chainhash.Hash{}

// versionMarkerValue is the single byte written at the
// (fakeAddress, maxKeyMinusOne) receipt entry. Spec's Open Question (c)
// treats this as load-bearing, not a placeholder.
const versionMarkerValue = 0x01

var fakeAddress = make([]byte, 20)

// maxKey / maxKeyMinusOne are the synthetic receipt-tree keys the IBD
// checksum path seeds: the tip of key-space and the key just below it.
var maxKey = bytesOfAllOnes(32)
var maxKeyMinusOne = decrementedMaxKey()

func bytesOfAllOnes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func decrementedMaxKey() []byte {
	b := bytesOfAllOnes(32)
	b[len(b)-1]--
	return b
}

// ProgressRecorder decouples the engine from the IBD orchestrator's
// concrete progress tracker: the engine asks whether to checkpoint and,
// if so, records the height it has durably flushed through.
type ProgressRecorder interface {
	ShouldSaveCheckpoint(height uint64) bool
	SaveCheckpoint(ctx context.Context, height uint64) error
}

// Engine computes and persists checksum chain fields for a contiguous
// height range, resumable from any checkpoint.
type Engine struct {
	store        document.Store
	logger       ulogger.Logger
	cache        *Cache
	preloadBatch uint64
	dbWriteBatch int

	preload      map[uint64]*model.BlockHeader
	preloadStart uint64
}

// NewEngine builds an Engine over store.
func NewEngine(store document.Store, logger ulogger.Logger) *Engine {
	preloadBatch, _ := gocore.Config().GetInt("checksum_preload_batch", 500)
	dbWriteBatch, _ := gocore.Config().GetInt("checksum_db_write_batch", 100)

	return &Engine{
		store:        store,
		logger:       logger.New("checksum"),
		cache:        NewCache(),
		preloadBatch: uint64(preloadBatch),
		dbWriteBatch: dbWriteBatch,
		preload:      make(map[uint64]*model.BlockHeader),
	}
}

// Run computes checksum fields for every height in [start, target) in
// ascending order, persisting in batches of dbWriteBatch and checkpointing
// through progress. Returns an error fatal to the calling phase on a
// missing header, a malformed previous checksum, or a store failure; ctx
// cancellation is checked at least once per block and leaves the last
// checkpoint untouched.
func (e *Engine) Run(ctx context.Context, start, target uint64, progress ProgressRecorder) error {
	ctx, _, deferFn := tracing.StartTracing(ctx, "checksum.Run",
		tracing.WithLogMessage(e.logger, "computing checksums [%d, %d)", start, target))
	defer deferFn()

	prevChecksum, err := e.seedPrevChecksum(ctx, start)
	if err != nil {
		return err
	}

	var buffered []*model.BlockHeader

	flush := func() error {
		if len(buffered) == 0 {
			return nil
		}
		if err := e.store.UpdateHeaders(ctx, buffered); err != nil {
			return errors.NewStorageError("flush checksum batch", err)
		}
		buffered = buffered[:0]
		return nil
	}

	for h := start; h < target; h++ {
		if err := ctx.Err(); err != nil {
			return errors.New(errors.ERR_CANCELLED, "checksum engine cancelled", err)
		}

		hdr, err := e.fetchHeader(ctx, h, target)
		if err != nil {
			return err
		}

		var prevHash chainhash.Hash
		if hdr.PreviousBlockHash != nil {
			prevHash = *hdr.PreviousBlockHash
		}

		receiptRoot, err := computeReceiptRoot(prevChecksum)
		if err != nil {
			return err
		}

		root, proofs := BuildTree([]chainhash.Hash{
			prevHash, prevChecksum, hdr.Hash, hdr.MerkleRoot, emptyStorageRoot, receiptRoot,
		})

		hdr.PreviousBlockChecksum = prevChecksum
		hdr.StorageRoot = emptyStorageRoot
		hdr.ReceiptRoot = receiptRoot
		hdr.ChecksumRoot = root
		hdr.ChecksumProofs = proofs
		hdr.ChecksumComputed = true

		buffered = append(buffered, hdr)

		if len(buffered) >= e.dbWriteBatch {
			if err := flush(); err != nil {
				return err
			}
		}

		if progress != nil && progress.ShouldSaveCheckpoint(h) {
			if err := flush(); err != nil {
				return err
			}
			if err := progress.SaveCheckpoint(ctx, h); err != nil {
				return err
			}
		}

		prevChecksum = root
	}

	if err := flush(); err != nil {
		return err
	}
	if progress != nil {
		if err := progress.SaveCheckpoint(ctx, target-1); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) seedPrevChecksum(ctx context.Context, start uint64) (chainhash.Hash, error) {
	if start == 0 {
		return ZeroHash, nil
	}

	prevHdr, err := e.store.GetHeaderByHeight(ctx, start-1)
	if err != nil {
		return chainhash.Hash{}, errors.NewHeaderNotFoundError("missing header at %d seeding checksum chain", start-1, err)
	}
	if !prevHdr.ChecksumComputed {
		return chainhash.Hash{}, errors.NewStateInitializationError("header at %d has no computed checksum yet", start-1)
	}
	return prevHdr.ChecksumRoot, nil
}

// fetchHeader serves from the preload cache, refilling it with one range
// query from the store on a miss.
func (e *Engine) fetchHeader(ctx context.Context, h, target uint64) (*model.BlockHeader, error) {
	if hdr, ok := e.preload[h]; ok {
		delete(e.preload, h)
		return hdr, nil
	}

	end := h + e.preloadBatch
	if end > target {
		end = target
	}

	headers, err := e.store.GetHeaderRange(ctx, h, end)
	if err != nil {
		return nil, errors.NewStorageError("preload headers [%d,%d)", h, end, err)
	}

	e.preload = make(map[uint64]*model.BlockHeader, len(headers))
	for _, hdr := range headers {
		e.preload[hdr.Height] = hdr
	}

	hdr, ok := e.preload[h]
	if !ok {
		return nil, errors.NewHeaderNotFoundError("missing header at height %d", h)
	}
	delete(e.preload, h)
	return hdr, nil
}

// computeReceiptRoot builds the two-leaf receipt merkle tree the IBD path
// seeds: (fakeAddress, maxKey) -> prevChecksum (or empty bytes at the
// chain's zero hash), and (fakeAddress, maxKeyMinusOne) -> the 0x01
// version marker.
func computeReceiptRoot(prevChecksum chainhash.Hash) (chainhash.Hash, error) {
	var valueBytes []byte
	if prevChecksum != ZeroHash {
		valueBytes = prevChecksum[:]
		if len(valueBytes) != 32 {
			return chainhash.Hash{}, errors.NewInvalidChecksumError("prev_checksum must be exactly 32 bytes, got %d", len(valueBytes))
		}
	}

	leaf0 := receiptLeaf(fakeAddress, maxKey, valueBytes)
	leaf1 := receiptLeaf(fakeAddress, maxKeyMinusOne, []byte{versionMarkerValue})

	root, _ := BuildTree([]chainhash.Hash{leaf0, leaf1})
	return root, nil
}

func receiptLeaf(address, key, value []byte) chainhash.Hash {
	buf := make([]byte, 0, len(address)+len(key)+len(value))
	buf = append(buf, address...)
	buf = append(buf, key...)
	buf = append(buf, value...)
	return chainhash.HashH(buf)
}
