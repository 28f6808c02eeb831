package document

import (
	"context"
	"sort"
	"sync"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
)

// MemoryStore is an in-memory Store used by tests and by single-process
// development nodes. All methods are guarded by one mutex; this is
// intentionally not optimized for concurrent throughput.
type MemoryStore struct {
	mu         sync.RWMutex
	headers    map[uint64]*model.BlockHeader
	byHash     map[chainhash.Hash]uint64
	witnesses  map[uint64][]*model.BlockWitness
	epochs     map[uint64]*model.Epoch
	contracts  map[string][]byte
	contractKV map[string][]byte
	utxos      map[string][]UTXO
	txs        map[chainhash.Hash]*model.Transaction
	txsByBlock map[uint64][]*model.Transaction
	state      map[string][]byte
	tip        ChainTip
	subs       map[int]chan uint64
	nextSub    int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		headers:    make(map[uint64]*model.BlockHeader),
		byHash:     make(map[chainhash.Hash]uint64),
		witnesses:  make(map[uint64][]*model.BlockWitness),
		epochs:     make(map[uint64]*model.Epoch),
		contracts:  make(map[string][]byte),
		contractKV: make(map[string][]byte),
		utxos:      make(map[string][]UTXO),
		txs:        make(map[chainhash.Hash]*model.Transaction),
		txsByBlock: make(map[uint64][]*model.Transaction),
		state:      make(map[string][]byte),
		subs:       make(map[int]chan uint64),
	}
}

func (m *MemoryStore) GetHeaderRange(_ context.Context, from, to uint64) ([]*model.BlockHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.BlockHeader
	for h := from; h < to; h++ {
		if hdr, ok := m.headers[h]; ok {
			cp := *hdr
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func (m *MemoryStore) GetHeaderByHeight(_ context.Context, height uint64) (*model.BlockHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hdr, ok := m.headers[height]
	if !ok {
		return nil, errors.NewHeaderNotFoundError("no header at height %d", height)
	}
	cp := *hdr
	return &cp, nil
}

func (m *MemoryStore) GetHeaderByHash(_ context.Context, hash chainhash.Hash) (*model.BlockHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	height, ok := m.byHash[hash]
	if !ok {
		return nil, errors.NewHeaderNotFoundError("no header for hash %s", hash.String())
	}
	cp := *m.headers[height]
	return &cp, nil
}

func (m *MemoryStore) UpdateHeaders(_ context.Context, headers []*model.BlockHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hdr := range headers {
		cp := *hdr
		m.headers[hdr.Height] = &cp
		m.byHash[hdr.Hash] = hdr.Height
	}
	return nil
}

func (m *MemoryStore) InsertWitness(_ context.Context, w *model.BlockWitness) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.witnesses[w.BlockNumber] {
		if existing.Identity == w.Identity {
			return errors.NewDuplicateError("witness for identity already stored at block %d", w.BlockNumber)
		}
	}
	cp := *w
	m.witnesses[w.BlockNumber] = append(m.witnesses[w.BlockNumber], &cp)
	return nil
}

func (m *MemoryStore) GetWitnesses(_ context.Context, blockNumber uint64) ([]*model.BlockWitness, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.BlockWitness, len(m.witnesses[blockNumber]))
	copy(out, m.witnesses[blockNumber])
	return out, nil
}

func (m *MemoryStore) CountTrustedIdentities(_ context.Context, blockNumber uint64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, w := range m.witnesses[blockNumber] {
		if w.Trusted {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PutEpoch(_ context.Context, e *model.Epoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.epochs[e.EpochNumber] = &cp
	return nil
}

func (m *MemoryStore) GetEpoch(_ context.Context, epochNumber uint64) (*model.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.epochs[epochNumber]
	if !ok {
		return nil, errors.NewNotFoundError("no epoch %d", epochNumber)
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) GetContract(_ context.Context, address string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.contracts[address]
	if !ok {
		return nil, errors.NewNotFoundError("no contract at %s", address)
	}
	return data, nil
}

func (m *MemoryStore) GetContractStorage(_ context.Context, address string, pointer []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.contractKV[address+"/"+string(pointer)]
	if !ok {
		return nil, errors.NewNotFoundError("no storage at %s", address)
	}
	return data, nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, txid chainhash.Hash) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[txid]
	if !ok {
		return nil, errors.NewNotFoundError("no transaction %s", txid.String())
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetTransactionsByBlock(_ context.Context, height uint64) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Transaction, len(m.txsByBlock[height]))
	copy(out, m.txsByBlock[height])
	return out, nil
}

// InsertTransaction is a test/seed helper; transaction writes are not part
// of the Store interface because full indexing belongs to the OP_NET VM.
func (m *MemoryStore) InsertTransaction(tx *model.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tx
	m.txs[tx.TxID] = &cp
	m.txsByBlock[tx.BlockHeight] = append(m.txsByBlock[tx.BlockHeight], &cp)
}

func (m *MemoryStore) GetUTXOs(_ context.Context, address string) ([]UTXO, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UTXO, len(m.utxos[address]))
	copy(out, m.utxos[address])
	return out, nil
}

func (m *MemoryStore) GetChainTip(_ context.Context) (ChainTip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tip, nil
}

func (m *MemoryStore) SetChainTip(_ context.Context, tip ChainTip) error {
	m.mu.Lock()
	m.tip = tip
	subs := make([]chan uint64, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- tip.Height:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context) (<-chan uint64, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan uint64, 16)
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(ch)
	}
}

func (m *MemoryStore) GetState(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (m *MemoryStore) SetState(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = data
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
