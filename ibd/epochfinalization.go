package ibd

import (
	"context"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/checksum"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
)

// EpochFinalizer computes and persists finalized epochs once every block
// in the epoch's range has a chained checksum and complete witness sync.
type EpochFinalizer struct {
	store            document.Store
	blocksPerEpoch   uint64
	minimumWitnesses int
	logger           ulogger.Logger
}

// NewEpochFinalizer builds an EpochFinalizer.
func NewEpochFinalizer(store document.Store, blocksPerEpoch uint64, minimumWitnesses int, logger ulogger.Logger) *EpochFinalizer {
	return &EpochFinalizer{store: store, blocksPerEpoch: blocksPerEpoch, minimumWitnesses: minimumWitnesses, logger: logger.New("ibd-epoch")}
}

// Run finalizes every epoch fully covered by [0, target) that is not
// already finalized.
func (f *EpochFinalizer) Run(ctx context.Context, target uint64, abort *AbortSignal, progress ProgressRecorder) error {
	ctx, _, deferFn := tracing.StartTracing(ctx, "ibd.EpochFinalizer.Run",
		tracing.WithLogMessage(f.logger, "finalizing epochs through height %d", target))
	defer deferFn()

	if f.blocksPerEpoch == 0 {
		return errors.NewConfigurationError("blocks_per_epoch must be > 0")
	}

	epochCount := target / f.blocksPerEpoch

	for epochNum := uint64(0); epochNum < epochCount; epochNum++ {
		if abort.Aborted() {
			return nil
		}

		existing, err := f.store.GetEpoch(ctx, epochNum)
		if err == nil && existing.Finalized {
			continue
		}

		ready, err := f.epochReady(ctx, epochNum)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}

		epoch, err := f.finalize(ctx, epochNum)
		if err != nil {
			return err
		}

		if err := f.store.PutEpoch(ctx, epoch); err != nil {
			return errors.NewStorageError("persist finalized epoch %d", epochNum, err)
		}

		if progress != nil {
			if err := progress.SaveCheckpoint(ctx, epoch.EndHeight()-1); err != nil {
				return err
			}
		}
	}

	return nil
}

func (f *EpochFinalizer) epochReady(ctx context.Context, epochNum uint64) (bool, error) {
	start := epochNum * f.blocksPerEpoch
	end := (epochNum + 1) * f.blocksPerEpoch

	for h := start; h < end; h++ {
		hdr, err := f.store.GetHeaderByHeight(ctx, h)
		if err != nil || !hdr.ChecksumComputed {
			return false, nil
		}

		count, err := f.store.CountTrustedIdentities(ctx, h)
		if err != nil {
			return false, errors.NewStorageError("count trusted identities at %d", h, err)
		}
		if count < f.minimumWitnesses {
			return false, nil
		}
	}

	return true, nil
}

func (f *EpochFinalizer) finalize(ctx context.Context, epochNum uint64) (*model.Epoch, error) {
	start := epochNum * f.blocksPerEpoch
	end := (epochNum + 1) * f.blocksPerEpoch

	headers, err := f.store.GetHeaderRange(ctx, start, end)
	if err != nil {
		return nil, errors.NewStorageError("get header range for epoch %d", epochNum, err)
	}
	if uint64(len(headers)) != f.blocksPerEpoch {
		return nil, errors.NewEpochMismatchError("epoch %d expects %d headers, found %d", epochNum, f.blocksPerEpoch, len(headers))
	}

	var witnesses []model.BlockWitness
	leaves := make([]chainhash.Hash, 0, len(headers))
	for _, hdr := range headers {
		leaves = append(leaves, hdr.ChecksumRoot)

		ws, err := f.store.GetWitnesses(ctx, hdr.Height)
		if err != nil {
			return nil, errors.NewStorageError("get witnesses for height %d", hdr.Height, err)
		}
		for _, w := range ws {
			witnesses = append(witnesses, *w)
		}
	}

	commitment, _ := checksum.BuildTree(leaves)

	return &model.Epoch{
		EpochNumber:          epochNum,
		BlocksPerEpoch:       f.blocksPerEpoch,
		Witnesses:            witnesses,
		AggregatedCommitment: commitment,
		Finalized:            true,
	}, nil
}
