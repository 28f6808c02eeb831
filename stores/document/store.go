// Package document defines the document store the rest of the indexer
// consumes: header ranges, witnesses, epochs, contract state, UTXOs, and
// a change-stream on the chain tip. The concrete storage engine is an
// external collaborator (see spec's out-of-scope list); this package
// supplies an in-memory reference implementation and a modernc.org/sqlite
// implementation, which cmd/opnetd runs on.
package document

import (
	"context"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/model"
)

// UTXO is the minimal unspent-output shape the plugin blockchain API and
// contract layer need to read.
type UTXO struct {
	TxID   chainhash.Hash
	Vout   uint32
	Value  uint64
	Script []byte
	Spent  bool
}

// ChainTip is the current best-known (height, hash) pair.
type ChainTip struct {
	Height uint64
	Hash   chainhash.Hash
}

// Store is the document database consumed by every subsystem. A single
// Store is shared process-wide; callers never bypass it to talk to the
// underlying engine directly.
type Store interface {
	// Headers
	GetHeaderRange(ctx context.Context, from, to uint64) ([]*model.BlockHeader, error)
	GetHeaderByHeight(ctx context.Context, height uint64) (*model.BlockHeader, error)
	GetHeaderByHash(ctx context.Context, hash chainhash.Hash) (*model.BlockHeader, error)
	// UpdateHeaders persists a batch of headers keyed by height, either
	// inserting new header-downloader records or back-filling the
	// checksum engine's computed fields on an existing record.
	UpdateHeaders(ctx context.Context, headers []*model.BlockHeader) error

	// Witnesses
	InsertWitness(ctx context.Context, w *model.BlockWitness) error
	GetWitnesses(ctx context.Context, blockNumber uint64) ([]*model.BlockWitness, error)
	CountTrustedIdentities(ctx context.Context, blockNumber uint64) (int, error)

	// Epochs
	PutEpoch(ctx context.Context, e *model.Epoch) error
	GetEpoch(ctx context.Context, epochNumber uint64) (*model.Epoch, error)

	// Contract state (read path only; writes belong to the OP_NET VM,
	// out of scope)
	GetContract(ctx context.Context, address string) ([]byte, error)
	GetContractStorage(ctx context.Context, address string, pointer []byte) ([]byte, error)

	// Transactions (read path only; full indexing belongs to the OP_NET
	// VM, out of scope)
	GetTransaction(ctx context.Context, txid chainhash.Hash) (*model.Transaction, error)
	GetTransactionsByBlock(ctx context.Context, height uint64) ([]*model.Transaction, error)

	// UTXOs
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// Chain tip
	GetChainTip(ctx context.Context) (ChainTip, error)
	SetChainTip(ctx context.Context, tip ChainTip) error

	// Subscribe returns a channel that receives the new tip height every
	// time SetChainTip advances it, and an unsubscribe function. Mirrors
	// the "change-stream on block height" requirement in spec §6.
	Subscribe(ctx context.Context) (<-chan uint64, func())

	// Arbitrary small key/value state (IBD progress, plugin
	// last_synced_block, etc.)
	GetState(ctx context.Context, key string) ([]byte, error)
	SetState(ctx context.Context, key string, data []byte) error

	Close() error
}
