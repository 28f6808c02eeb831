package rpcclient

import (
	"context"
	"strconv"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/ordishs/go-bitcoin"
)

// BitcoindClient adapts github.com/ordishs/go-bitcoin's JSON-RPC client to
// the Client interface, the same RPC library the teacher's validator
// service depends on.
type BitcoindClient struct {
	b *bitcoin.Bitcoind
}

// NewBitcoindClient dials a bitcoind JSON-RPC endpoint.
func NewBitcoindClient(host string, port int, user, pass string, useSSL bool) (*BitcoindClient, error) {
	b, err := bitcoin.New(host, port, user, pass, useSSL)
	if err != nil {
		return nil, errors.NewRPCError("connect to bitcoind", err)
	}
	return &BitcoindClient{b: b}, nil
}

func (c *BitcoindClient) GetBlockHashes(ctx context.Context, start uint64, count int) ([]*chainhash.Hash, error) {
	out := make([]*chainhash.Hash, count)
	for i := 0; i < count; i++ {
		hashStr, err := c.b.GetBlockHash(int(start) + i)
		if err != nil {
			// Height beyond the node's own tip: leave nil rather than
			// fail the whole batch, per the header downloader's contract.
			continue
		}
		hash, err := chainhash.NewHashFromStr(hashStr)
		if err != nil {
			return nil, errors.NewRPCError("parse block hash at height %d", start+uint64(i), err)
		}
		out[i] = hash
	}
	return out, nil
}

func (c *BitcoindClient) GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*Header, error) {
	res, err := c.b.GetBlockHeader(hash.String())
	if err != nil {
		return nil, errors.NewRPCError("get block header %s", hash.String(), err)
	}

	h := &Header{
		Time:       res.Time,
		MedianTime: res.Mediantime,
		Bits:       parseBitsHex(res.Bits),
		Nonce:      uint32(res.Nonce),
		Version:    int32(res.Version),
		TxCount:    uint64(res.NTx),
	}

	merkleRoot, err := chainhash.NewHashFromStr(res.Merkleroot)
	if err != nil {
		return nil, errors.NewRPCError("parse merkle root", err)
	}
	h.MerkleRoot = *merkleRoot
	h.Hash = hash

	if res.Previousblockhash != "" {
		prev, err := chainhash.NewHashFromStr(res.Previousblockhash)
		if err != nil {
			return nil, errors.NewRPCError("parse previous block hash", err)
		}
		h.PreviousBlockHash = prev
	}

	return h, nil
}

func (c *BitcoindClient) GetBlockCount(ctx context.Context) (uint64, error) {
	count, err := c.b.GetBlockCount()
	if err != nil {
		return 0, errors.NewRPCError("get block count", err)
	}
	return uint64(count), nil
}

func parseBitsHex(s string) uint32 {
	v, _ := strconv.ParseUint(s, 16, 32)
	return uint32(v)
}
