package model

import "github.com/libsv/go-bt/v2/chainhash"

// Epoch covers heights [EpochNumber*BlocksPerEpoch, (EpochNumber+1)*BlocksPerEpoch)
// and is finalizable once every height in that range has a chained
// checksum and complete witness sync.
type Epoch struct {
	EpochNumber          uint64
	BlocksPerEpoch       uint64
	Witnesses            []BlockWitness
	AggregatedCommitment chainhash.Hash
	Finalized            bool
}

// StartHeight is the first height this epoch covers.
func (e *Epoch) StartHeight() uint64 { return e.EpochNumber * e.BlocksPerEpoch }

// EndHeight is the first height NOT covered by this epoch (exclusive).
func (e *Epoch) EndHeight() uint64 { return (e.EpochNumber + 1) * e.BlocksPerEpoch }
