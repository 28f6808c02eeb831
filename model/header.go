// Package model holds the node's core domain records: block headers,
// epochs, witnesses, the trusted-authority key set, and IBD progress
// state. These are plain data types; behavior lives in the packages that
// own each record's lifecycle (checksum, ibd, trustedauthority).
package model

import (
	"time"

	"github.com/libsv/go-bt/v2/chainhash"
)

// ChecksumProof is one merkle proof path for a single leaf of a block's
// six-leaf checksum tree.
type ChecksumProof struct {
	LeafIndex int
	Path      []chainhash.Hash
}

// BlockHeader is the per-block record the indexer maintains. Fields up to
// TxCount are populated by the header downloader; the remaining fields
// are back-filled exactly once by the checksum chain engine and are never
// mutated again except by a reorg rewind.
type BlockHeader struct {
	Height            uint64
	Hash              chainhash.Hash
	PreviousBlockHash *chainhash.Hash // nil for genesis
	MerkleRoot        chainhash.Hash
	Time              time.Time
	MedianTime        time.Time
	Bits              uint32
	Nonce             uint32
	Version           int32
	TxCount           uint64

	// Back-filled by the checksum chain engine.
	ChecksumRoot          chainhash.Hash
	ChecksumProofs        []ChecksumProof
	PreviousBlockChecksum chainhash.Hash
	StorageRoot           chainhash.Hash
	ReceiptRoot           chainhash.Hash
	Gas                   GasFields
	ChecksumComputed      bool
}

// GasFields tracks the OP_NET gas accounting commitments associated with
// a block's receipt root. Populated only for post-OP_NET blocks; IBD of
// pre-OP_NET history leaves these at their zero value.
type GasFields struct {
	GasUsed  uint64
	GasLimit uint64
}

// IsGenesis reports whether this header has no predecessor.
func (h *BlockHeader) IsGenesis() bool {
	return h.PreviousBlockHash == nil
}
