// Package rpcclient defines the Bitcoin RPC client the header downloader
// consumes. The concrete wire transport is an external collaborator (out
// of scope); this package declares the interface, a thin wrapper around
// github.com/ordishs/go-bitcoin that cmd/opnetd uses (bitcoind.go), and an
// in-memory FakeClient for tests (fake.go).
package rpcclient

import (
	"context"

	"github.com/libsv/go-bt/v2/chainhash"
)

// Header is the subset of fields the header downloader reads off the
// Bitcoin RPC client, before the checksum engine back-fills the rest.
type Header struct {
	Hash              chainhash.Hash
	PreviousBlockHash *chainhash.Hash
	MerkleRoot        chainhash.Hash
	Time              int64
	MedianTime        int64
	Bits              uint32
	Nonce             uint32
	Version           int32
	TxCount           uint64
}

// Client is the consumed Bitcoin RPC surface.
type Client interface {
	// GetBlockHashes returns one hash per height in [start, start+count),
	// in height order. A nil entry marks a height the node does not yet
	// have (e.g. beyond its own tip).
	GetBlockHashes(ctx context.Context, start uint64, count int) ([]*chainhash.Hash, error)
	// GetBlockHeader fetches a single header by hash.
	GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*Header, error)
	// GetBlockCount returns the node's own best-known chain height, the
	// target the IBD orchestrator chases during steady-state indexing.
	GetBlockCount(ctx context.Context) (uint64, error)
}
