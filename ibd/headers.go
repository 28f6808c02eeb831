// Package ibd implements the Initial Block Download pipeline: the
// four-phase orchestrator, the parallel header downloader, witness sync,
// and epoch finalization.
package ibd

import (
	"context"
	"time"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/rpcclient"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/opnet-chain/opnetd/util/retry"
	"github.com/ordishs/gocore"
	"golang.org/x/sync/errgroup"
)

// HeaderDownloaderConfig controls batching and retry.
type HeaderDownloaderConfig struct {
	WorkerCount   int
	BatchSize     uint64
	RetryCount    int
	BackoffBaseMs int
}

// DefaultHeaderDownloaderConfig reads gocore.Config() the way the rest of
// the ambient stack does, falling back to the contract's stated defaults.
func DefaultHeaderDownloaderConfig() HeaderDownloaderConfig {
	workerCount, _ := gocore.Config().GetInt("ibd_header_worker_count", 8)
	batchSize, _ := gocore.Config().GetInt("ibd_header_batch_size", 500)
	retryCount, _ := gocore.Config().GetInt("ibd_header_retry_count", 3)
	backoffBaseMs, _ := gocore.Config().GetInt("ibd_header_backoff_base_ms", 100)

	return HeaderDownloaderConfig{
		WorkerCount:   workerCount,
		BatchSize:     uint64(batchSize),
		RetryCount:    retryCount,
		BackoffBaseMs: backoffBaseMs,
	}
}

// HeaderDownloader populates header records with every non-checksum
// field for a height range, leaving checksum fields empty for §4.1 to
// fill in later.
type HeaderDownloader struct {
	client rpcclient.Client
	store  document.Store
	logger ulogger.Logger
	cfg    HeaderDownloaderConfig
}

// NewHeaderDownloader builds a HeaderDownloader.
func NewHeaderDownloader(client rpcclient.Client, store document.Store, logger ulogger.Logger, cfg HeaderDownloaderConfig) *HeaderDownloader {
	return &HeaderDownloader{client: client, store: store, logger: logger.New("ibd-headers"), cfg: cfg}
}

// Run downloads and persists headers for [start, target) as worker_count
// concurrent batches of batch_size each. A batch failure (any hash
// unresolved after retries, or a partial result) fails the whole run.
func (d *HeaderDownloader) Run(ctx context.Context, start, target uint64) error {
	ctx, _, deferFn := tracing.StartTracing(ctx, "ibd.HeaderDownloader.Run",
		tracing.WithLogMessage(d.logger, "downloading headers [%d, %d)", start, target))
	defer deferFn()

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.cfg.WorkerCount)

	for batchStart := start; batchStart < target; batchStart += d.cfg.BatchSize {
		batchStart := batchStart
		batchEnd := batchStart + d.cfg.BatchSize
		if batchEnd > target {
			batchEnd = target
		}

		group.Go(func() error {
			return d.runBatch(gctx, batchStart, batchEnd)
		})
	}

	return group.Wait()
}

func (d *HeaderDownloader) runBatch(ctx context.Context, start, end uint64) error {
	count := int(end - start)

	hashes, err := d.client.GetBlockHashes(ctx, start, count)
	if err != nil {
		return errors.NewRPCError("get block hashes [%d,%d)", start, end, err)
	}
	if len(hashes) != count {
		return errors.NewRPCError("partial result for [%d,%d): got %d of %d hashes", start, end, len(hashes), count)
	}

	headers := make([]*model.BlockHeader, count)

	for i, hash := range hashes {
		if hash == nil {
			return errors.NewRPCError("unresolved hash at height %d", start+uint64(i))
		}

		height := start + uint64(i)
		hash := *hash

		result, err := retry.Retry(ctx, d.logger, func() (interface{}, error) {
			return d.client.GetBlockHeader(ctx, hash)
		}, retry.WithRetryCount(d.cfg.RetryCount),
			retry.WithExponentialBackoff(),
			retry.WithBackoffFactor(2),
			retry.WithBackoffDurationType(time.Duration(d.cfg.BackoffBaseMs)*time.Millisecond),
			retry.WithMessage("get block header"))
		if err != nil {
			return errors.NewRPCError("get block header at height %d after retries", height, err)
		}

		rpcHeader := result.(*rpcclient.Header)
		headers[i] = &model.BlockHeader{
			Height:            height,
			Hash:              rpcHeader.Hash,
			PreviousBlockHash: rpcHeader.PreviousBlockHash,
			MerkleRoot:        rpcHeader.MerkleRoot,
			Time:              time.Unix(rpcHeader.Time, 0).UTC(),
			MedianTime:        time.Unix(rpcHeader.MedianTime, 0).UTC(),
			Bits:              rpcHeader.Bits,
			Nonce:             rpcHeader.Nonce,
			Version:           rpcHeader.Version,
			TxCount:           rpcHeader.TxCount,
		}
	}

	// Ordered by height before persistence, per contract.
	if err := d.store.UpdateHeaders(ctx, headers); err != nil {
		return errors.NewStorageError("persist header batch [%d,%d)", start, end, err)
	}

	return nil
}
