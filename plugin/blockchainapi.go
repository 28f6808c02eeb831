package plugin

import (
	"context"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
)

// MaxBlockRange bounds getBlockRange, per spec.md §4.8.
const MaxBlockRange = 100

// blockchain permission area names, matching permissions.blockchain
// entries in plugin metadata.
const (
	areaGetBlock               = "getBlock"
	areaGetBlockWithTxs        = "getBlockWithTransactions"
	areaGetTransaction         = "getTransaction"
	areaGetTransactionsByBlock = "getTransactionsByBlock"
	areaGetContract            = "getContract"
	areaGetContractStorage     = "getContractStorage"
	areaGetContractEvents      = "getContractEvents"
	areaGetUTXOs               = "getUTXOs"
	areaGetChainTip            = "getChainTip"
	areaGetBlockRange          = "getBlockRange"
	areaHasBlock               = "hasBlock"
)

// BlockWithTransactions pairs a header with the transactions indexed
// for that height.
type BlockWithTransactions struct {
	Header       *model.BlockHeader
	Transactions []*model.Transaction
}

// BlockchainAPI is the read-only blockchain surface exposed to plugins,
// permission-gated per spec.md §4.8: every call checks the
// corresponding permissions.blockchain entry and raises
// BLOCKCHAIN_<AREA>_NOT_PERMITTED otherwise.
type BlockchainAPI struct {
	plugin *Plugin
	store  document.Store
}

// NewBlockchainAPI scopes a BlockchainAPI to one plugin's granted
// permissions.
func NewBlockchainAPI(p *Plugin, store document.Store) *BlockchainAPI {
	return &BlockchainAPI{plugin: p, store: store}
}

func (a *BlockchainAPI) checkPermission(area string) error {
	if hasPermission(a.plugin.Metadata.Permissions.Blockchain, area) {
		return nil
	}
	return errors.NewPluginNotPermittedError("plugin %s: BLOCKCHAIN_%s_NOT_PERMITTED", a.plugin.ID, area)
}

// GetBlockByHeight returns the header at height.
func (a *BlockchainAPI) GetBlockByHeight(ctx context.Context, height uint64) (*model.BlockHeader, error) {
	if err := a.checkPermission(areaGetBlock); err != nil {
		return nil, err
	}
	return a.store.GetHeaderByHeight(ctx, height)
}

// GetBlockByHash returns the header matching hash.
func (a *BlockchainAPI) GetBlockByHash(ctx context.Context, hash chainhash.Hash) (*model.BlockHeader, error) {
	if err := a.checkPermission(areaGetBlock); err != nil {
		return nil, err
	}
	return a.store.GetHeaderByHash(ctx, hash)
}

// GetBlockWithTransactions returns the header and indexed transactions
// at height.
func (a *BlockchainAPI) GetBlockWithTransactions(ctx context.Context, height uint64) (*BlockWithTransactions, error) {
	if err := a.checkPermission(areaGetBlockWithTxs); err != nil {
		return nil, err
	}
	hdr, err := a.store.GetHeaderByHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	txs, err := a.store.GetTransactionsByBlock(ctx, height)
	if err != nil {
		return nil, err
	}
	return &BlockWithTransactions{Header: hdr, Transactions: txs}, nil
}

// GetTransaction returns one transaction by id.
func (a *BlockchainAPI) GetTransaction(ctx context.Context, txid chainhash.Hash) (*model.Transaction, error) {
	if err := a.checkPermission(areaGetTransaction); err != nil {
		return nil, err
	}
	return a.store.GetTransaction(ctx, txid)
}

// GetTransactionsByBlock returns every transaction indexed at height.
func (a *BlockchainAPI) GetTransactionsByBlock(ctx context.Context, height uint64) ([]*model.Transaction, error) {
	if err := a.checkPermission(areaGetTransactionsByBlock); err != nil {
		return nil, err
	}
	return a.store.GetTransactionsByBlock(ctx, height)
}

// GetContract returns a contract's bytecode/state blob.
func (a *BlockchainAPI) GetContract(ctx context.Context, address string) ([]byte, error) {
	if err := a.checkPermission(areaGetContract); err != nil {
		return nil, err
	}
	return a.store.GetContract(ctx, address)
}

// GetContractStorage returns one contract storage slot.
func (a *BlockchainAPI) GetContractStorage(ctx context.Context, address string, pointer []byte) ([]byte, error) {
	if err := a.checkPermission(areaGetContractStorage); err != nil {
		return nil, err
	}
	return a.store.GetContractStorage(ctx, address, pointer)
}

// GetContractEvents is declared by spec.md §4.8 but not yet
// implemented; it always errors, matching the spec's explicit
// "not yet implemented -> errors" note for this one call.
func (a *BlockchainAPI) GetContractEvents(ctx context.Context, address string) ([]byte, error) {
	if err := a.checkPermission(areaGetContractEvents); err != nil {
		return nil, err
	}
	return nil, errors.NewNotImplementedError("getContractEvents is not yet implemented")
}

// GetUTXOs returns the UTXO set for address.
func (a *BlockchainAPI) GetUTXOs(ctx context.Context, address string) ([]document.UTXO, error) {
	if err := a.checkPermission(areaGetUTXOs); err != nil {
		return nil, err
	}
	return a.store.GetUTXOs(ctx, address)
}

// GetChainTip returns the current best-known tip.
func (a *BlockchainAPI) GetChainTip(ctx context.Context) (document.ChainTip, error) {
	if err := a.checkPermission(areaGetChainTip); err != nil {
		return document.ChainTip{}, err
	}
	return a.store.GetChainTip(ctx)
}

// GetBlockRange returns headers in [from, to), capped at MaxBlockRange
// heights per call.
func (a *BlockchainAPI) GetBlockRange(ctx context.Context, from, to uint64) ([]*model.BlockHeader, error) {
	if err := a.checkPermission(areaGetBlockRange); err != nil {
		return nil, err
	}
	if to < from {
		return nil, errors.NewInvalidArgumentError("getBlockRange: to %d precedes from %d", to, from)
	}
	if to-from > MaxBlockRange {
		return nil, errors.NewInvalidArgumentError("getBlockRange span %d exceeds max %d", to-from, MaxBlockRange)
	}
	return a.store.GetHeaderRange(ctx, from, to)
}

// HasBlock reports whether a header exists at height.
func (a *BlockchainAPI) HasBlock(ctx context.Context, height uint64) (bool, error) {
	if err := a.checkPermission(areaHasBlock); err != nil {
		return false, err
	}
	_, err := a.store.GetHeaderByHeight(ctx, height)
	if err != nil {
		if opnetErr, ok := err.(*errors.Error); ok && opnetErr.Code == errors.ERR_HEADER_NOT_FOUND {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
