package document

import (
	"context"
	"database/sql"
	"sync"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a modernc.org/sqlite-backed reference Store, in the same
// raw-SQL-over-database/sql style as the teacher's stores/blockchain/sql
// package (GetBestBlockHeader.go, StoreBlock.go, State.go). Intended for
// tests and single-node deployments, not as a production storage engine.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	subs map[int]chan uint64
	next int
}

// NewSQLiteStore opens (creating if needed) the schema at dsn, e.g.
// "file:opnetd.db?cache=shared" or ":memory:".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStorageError("open sqlite store", err)
	}

	s := &SQLiteStore{db: db, subs: make(map[int]chan uint64)}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS headers (
		height INTEGER PRIMARY KEY,
		hash BLOB NOT NULL UNIQUE,
		previous_block_hash BLOB,
		merkle_root BLOB NOT NULL,
		time INTEGER NOT NULL,
		median_time INTEGER NOT NULL,
		bits INTEGER NOT NULL,
		nonce INTEGER NOT NULL,
		version INTEGER NOT NULL,
		tx_count INTEGER NOT NULL,
		checksum_root BLOB,
		previous_block_checksum BLOB,
		storage_root BLOB,
		receipt_root BLOB,
		gas_used INTEGER,
		gas_limit INTEGER,
		checksum_computed INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS witnesses (
		block_number INTEGER NOT NULL,
		identity BLOB NOT NULL,
		signature BLOB NOT NULL,
		public_key BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		trusted INTEGER NOT NULL,
		PRIMARY KEY (block_number, identity)
	);
	CREATE TABLE IF NOT EXISTS epochs (
		epoch_number INTEGER PRIMARY KEY,
		blocks_per_epoch INTEGER NOT NULL,
		aggregated_commitment BLOB,
		finalized INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS chain_tip (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		height INTEGER NOT NULL,
		hash BLOB NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return errors.NewStorageError("migrate sqlite schema", err)
	}
	return nil
}

func (s *SQLiteStore) GetHeaderRange(ctx context.Context, from, to uint64) ([]*model.BlockHeader, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT height, hash, previous_block_hash, merkle_root, time, median_time,
		       bits, nonce, version, tx_count, checksum_root, previous_block_checksum,
		       storage_root, receipt_root, gas_used, gas_limit, checksum_computed
		FROM headers WHERE height >= ? AND height < ? ORDER BY height ASC
	`, from, to)
	if err != nil {
		return nil, errors.NewStorageError("get header range", err)
	}
	defer rows.Close()

	var out []*model.BlockHeader
	for rows.Next() {
		hdr, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, hdr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHeader(row scanner) (*model.BlockHeader, error) {
	var (
		h                                              model.BlockHeader
		hash, prevHash, merkleRoot                     []byte
		checksumRoot, prevChecksum, storageRoot, recRoot sql.NullString
		timeUnix, medianUnix                           int64
		gasUsed, gasLimit                              sql.NullInt64
		checksumComputed                               int
	)

	if err := row.Scan(&h.Height, &hash, &prevHash, &merkleRoot, &timeUnix, &medianUnix,
		&h.Bits, &h.Nonce, &h.Version, &h.TxCount, &checksumRoot, &prevChecksum,
		&storageRoot, &recRoot, &gasUsed, &gasLimit, &checksumComputed); err != nil {
		return nil, errors.NewStorageError("scan header row", err)
	}

	copy(h.Hash[:], hash)
	if prevHash != nil {
		var ph chainhash.Hash
		copy(ph[:], prevHash)
		h.PreviousBlockHash = &ph
	}
	copy(h.MerkleRoot[:], merkleRoot)
	h.Time = unixToTime(timeUnix)
	h.MedianTime = unixToTime(medianUnix)
	if checksumRoot.Valid {
		copy(h.ChecksumRoot[:], []byte(checksumRoot.String))
	}
	if prevChecksum.Valid {
		copy(h.PreviousBlockChecksum[:], []byte(prevChecksum.String))
	}
	if storageRoot.Valid {
		copy(h.StorageRoot[:], []byte(storageRoot.String))
	}
	if recRoot.Valid {
		copy(h.ReceiptRoot[:], []byte(recRoot.String))
	}
	h.Gas.GasUsed = uint64(gasUsed.Int64)
	h.Gas.GasLimit = uint64(gasLimit.Int64)
	h.ChecksumComputed = checksumComputed != 0

	return &h, nil
}

func (s *SQLiteStore) GetHeaderByHeight(ctx context.Context, height uint64) (*model.BlockHeader, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT height, hash, previous_block_hash, merkle_root, time, median_time,
		       bits, nonce, version, tx_count, checksum_root, previous_block_checksum,
		       storage_root, receipt_root, gas_used, gas_limit, checksum_computed
		FROM headers WHERE height = ?
	`, height)

	hdr, err := scanHeader(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewHeaderNotFoundError("no header at height %d", height)
		}
		return nil, err
	}
	return hdr, nil
}

func (s *SQLiteStore) GetHeaderByHash(ctx context.Context, hash chainhash.Hash) (*model.BlockHeader, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT height, hash, previous_block_hash, merkle_root, time, median_time,
		       bits, nonce, version, tx_count, checksum_root, previous_block_checksum,
		       storage_root, receipt_root, gas_used, gas_limit, checksum_computed
		FROM headers WHERE hash = ?
	`, hash[:])

	hdr, err := scanHeader(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewHeaderNotFoundError("no header for hash %s", hash.String())
		}
		return nil, err
	}
	return hdr, nil
}

// UpdateHeaders writes every header in one transaction, the way
// StoreBlock.go batches a block's row writes.
func (s *SQLiteStore) UpdateHeaders(ctx context.Context, headers []*model.BlockHeader) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("begin tx", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO headers (height, hash, previous_block_hash, merkle_root, time, median_time,
			bits, nonce, version, tx_count, checksum_root, previous_block_checksum,
			storage_root, receipt_root, gas_used, gas_limit, checksum_computed)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(height) DO UPDATE SET
			hash=excluded.hash, previous_block_hash=excluded.previous_block_hash,
			merkle_root=excluded.merkle_root, time=excluded.time, median_time=excluded.median_time,
			bits=excluded.bits, nonce=excluded.nonce, version=excluded.version, tx_count=excluded.tx_count,
			checksum_root=excluded.checksum_root, previous_block_checksum=excluded.previous_block_checksum,
			storage_root=excluded.storage_root, receipt_root=excluded.receipt_root,
			gas_used=excluded.gas_used, gas_limit=excluded.gas_limit,
			checksum_computed=excluded.checksum_computed
	`

	for _, h := range headers {
		var prevHash []byte
		if h.PreviousBlockHash != nil {
			prevHash = h.PreviousBlockHash[:]
		}
		checksumComputed := 0
		if h.ChecksumComputed {
			checksumComputed = 1
		}

		if _, err := tx.ExecContext(ctx, upsert,
			h.Height, h.Hash[:], prevHash, h.MerkleRoot[:], h.Time.Unix(), h.MedianTime.Unix(),
			h.Bits, h.Nonce, h.Version, h.TxCount,
			h.ChecksumRoot[:], h.PreviousBlockChecksum[:], h.StorageRoot[:], h.ReceiptRoot[:],
			h.Gas.GasUsed, h.Gas.GasLimit, checksumComputed,
		); err != nil {
			return errors.NewStorageError("upsert header %d", h.Height, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageError("commit header batch", err)
	}
	return nil
}

func (s *SQLiteStore) InsertWitness(ctx context.Context, w *model.BlockWitness) error {
	trusted := 0
	if w.Trusted {
		trusted = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO witnesses (block_number, identity, signature, public_key, timestamp, trusted)
		VALUES (?,?,?,?,?,?)
	`, w.BlockNumber, w.Identity[:], w.Signature, w.PublicKey, w.Timestamp.Unix(), trusted)
	if err != nil {
		return errors.NewDuplicateError("witness for identity already stored at block %d", w.BlockNumber, err)
	}
	return nil
}

func (s *SQLiteStore) GetWitnesses(ctx context.Context, blockNumber uint64) ([]*model.BlockWitness, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, signature, public_key, timestamp, trusted
		FROM witnesses WHERE block_number = ?
	`, blockNumber)
	if err != nil {
		return nil, errors.NewStorageError("get witnesses", err)
	}
	defer rows.Close()

	var out []*model.BlockWitness
	for rows.Next() {
		var (
			identity, sig, pub []byte
			ts                 int64
			trusted            int
		)
		if err := rows.Scan(&identity, &sig, &pub, &ts, &trusted); err != nil {
			return nil, errors.NewStorageError("scan witness row", err)
		}
		w := &model.BlockWitness{
			BlockNumber: blockNumber,
			Signature:   sig,
			PublicKey:   pub,
			Timestamp:   unixToTime(ts),
			Trusted:     trusted != 0,
		}
		copy(w.Identity[:], identity)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountTrustedIdentities(ctx context.Context, blockNumber uint64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM witnesses WHERE block_number = ? AND trusted = 1
	`, blockNumber).Scan(&count)
	if err != nil {
		return 0, errors.NewStorageError("count trusted identities", err)
	}
	return count, nil
}

func (s *SQLiteStore) PutEpoch(ctx context.Context, e *model.Epoch) error {
	finalized := 0
	if e.Finalized {
		finalized = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epochs (epoch_number, blocks_per_epoch, aggregated_commitment, finalized)
		VALUES (?,?,?,?)
		ON CONFLICT(epoch_number) DO UPDATE SET
			aggregated_commitment=excluded.aggregated_commitment, finalized=excluded.finalized
	`, e.EpochNumber, e.BlocksPerEpoch, e.AggregatedCommitment[:], finalized)
	if err != nil {
		return errors.NewStorageError("put epoch %d", e.EpochNumber, err)
	}
	return nil
}

func (s *SQLiteStore) GetEpoch(ctx context.Context, epochNumber uint64) (*model.Epoch, error) {
	var (
		blocksPerEpoch uint64
		commitment     []byte
		finalized      int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT blocks_per_epoch, aggregated_commitment, finalized FROM epochs WHERE epoch_number = ?
	`, epochNumber).Scan(&blocksPerEpoch, &commitment, &finalized)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no epoch %d", epochNumber)
	}
	if err != nil {
		return nil, errors.NewStorageError("get epoch %d", epochNumber, err)
	}

	e := &model.Epoch{EpochNumber: epochNumber, BlocksPerEpoch: blocksPerEpoch, Finalized: finalized != 0}
	copy(e.AggregatedCommitment[:], commitment)
	return e, nil
}

// Contract state, UTXOs: the OP_NET VM and UTXO set are out-of-scope
// collaborators; these return NOT_FOUND / empty until a real engine is
// wired behind the same interface.
func (s *SQLiteStore) GetContract(context.Context, string) ([]byte, error) {
	return nil, errors.NewNotFoundError("contract store not backed by this reference implementation")
}

func (s *SQLiteStore) GetContractStorage(context.Context, string, []byte) ([]byte, error) {
	return nil, errors.NewNotFoundError("contract storage not backed by this reference implementation")
}

func (s *SQLiteStore) GetUTXOs(context.Context, string) ([]UTXO, error) {
	return nil, nil
}

func (s *SQLiteStore) GetTransaction(context.Context, chainhash.Hash) (*model.Transaction, error) {
	return nil, errors.NewNotFoundError("transaction store not backed by this reference implementation")
}

func (s *SQLiteStore) GetTransactionsByBlock(context.Context, uint64) ([]*model.Transaction, error) {
	return nil, nil
}

func (s *SQLiteStore) GetChainTip(ctx context.Context) (ChainTip, error) {
	var tip ChainTip
	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT height, hash FROM chain_tip WHERE id = 0`).Scan(&tip.Height, &hash)
	if err == sql.ErrNoRows {
		return ChainTip{}, nil
	}
	if err != nil {
		return ChainTip{}, errors.NewStorageError("get chain tip", err)
	}
	copy(tip.Hash[:], hash)
	return tip, nil
}

func (s *SQLiteStore) SetChainTip(ctx context.Context, tip ChainTip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_tip (id, height, hash) VALUES (0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET height=excluded.height, hash=excluded.hash
	`, tip.Height, tip.Hash[:])
	if err != nil {
		return errors.NewStorageError("set chain tip", err)
	}

	s.mu.Lock()
	subs := make([]chan uint64, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- tip.Height:
		default:
		}
	}
	return nil
}

func (s *SQLiteStore) Subscribe(context.Context) (<-chan uint64, func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan uint64, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}
}

func (s *SQLiteStore) GetState(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM state WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("get state %s", key, err)
	}
	return data, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, data, updated_at) VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at
	`, key, data)
	if err != nil {
		return errors.NewStorageError("set state %s", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
