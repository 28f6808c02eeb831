package rpcclient

import (
	"context"
	"sync"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
)

// FakeClient is an in-memory Client used by header downloader tests. It
// never touches the network.
type FakeClient struct {
	mu      sync.Mutex
	headers map[uint64]*Header
	// FailuresRemaining makes GetBlockHeader fail for a given hash the
	// next N times it's called, to exercise retry.
	FailuresRemaining map[chainhash.Hash]int
	// Count is GetBlockCount's return value; NewFakeClient sets it to the
	// seeded header count.
	Count uint64
}

// NewFakeClient seeds a client with count sequential, chained headers
// starting at height 0.
func NewFakeClient(count int) *FakeClient {
	c := &FakeClient{
		headers:           make(map[uint64]*Header, count),
		FailuresRemaining: make(map[chainhash.Hash]int),
		Count:             uint64(count),
	}

	var prev *chainhash.Hash
	for h := 0; h < count; h++ {
		hash := chainhash.Hash{byte(h + 1), byte(h + 1)}
		c.headers[uint64(h)] = &Header{
			Hash:              hash,
			PreviousBlockHash: prev,
			MerkleRoot:        chainhash.Hash{byte(h + 50)},
			TxCount:           1,
		}
		hc := hash
		prev = &hc
	}

	return c
}

func (c *FakeClient) GetBlockHashes(_ context.Context, start uint64, count int) ([]*chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*chainhash.Hash, count)
	for i := 0; i < count; i++ {
		hdr, ok := c.headers[start+uint64(i)]
		if !ok {
			continue
		}
		hash := hdr.Hash
		out[i] = &hash
	}
	return out, nil
}

func (c *FakeClient) GetBlockHeader(_ context.Context, hash chainhash.Hash) (*Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remaining, ok := c.FailuresRemaining[hash]; ok && remaining > 0 {
		c.FailuresRemaining[hash] = remaining - 1
		return nil, errors.NewRPCError("simulated transient failure for %s", hash.String())
	}

	for _, hdr := range c.headers {
		if hdr.Hash == hash {
			cp := *hdr
			return &cp, nil
		}
	}
	return nil, errors.NewRPCError("unknown hash %s", hash.String())
}

func (c *FakeClient) GetBlockCount(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Count, nil
}

var _ Client = (*FakeClient)(nil)
