package ibd

import (
	"context"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
)

// WitnessRequester is the P2P layer's consumed interface: ask every
// authenticated non-light peer for witnesses at a height. The concrete
// implementation lives in p2p/gossip.go; ibd only depends on this narrow
// contract.
type WitnessRequester interface {
	RequestWitnesses(ctx context.Context, height uint64) ([]*model.BlockWitness, error)
}

// WitnessVerifier checks a witness's signature against the active
// trusted-authority set. Implemented by trustedauthority.Manager.
type WitnessVerifier interface {
	VerifyTrustedSignature(data, signature, publicKey []byte) (valid bool, identity [32]byte)
}

// WitnessSyncer drives the WITNESS_SYNC phase: for every height in
// range, request witnesses from peers until the trusted-identity minimum
// is reached or peers are exhausted.
type WitnessSyncer struct {
	store     document.Store
	requester WitnessRequester
	verifier  WitnessVerifier
	minimum   int
	logger    ulogger.Logger
}

// NewWitnessSyncer builds a WitnessSyncer requiring at least minimum
// distinct trusted identities per block before considering it synced.
func NewWitnessSyncer(store document.Store, requester WitnessRequester, verifier WitnessVerifier, minimum int, logger ulogger.Logger) *WitnessSyncer {
	return &WitnessSyncer{store: store, requester: requester, verifier: verifier, minimum: minimum, logger: logger.New("ibd-witness")}
}

// Run requests and persists witnesses for every height in [start, target).
// A height with zero peer-offered witnesses is not an error: completion
// with 0 witnesses is allowed (spec §8 scenario 1).
func (w *WitnessSyncer) Run(ctx context.Context, start, target uint64, abort *AbortSignal, progress ProgressRecorder) error {
	ctx, _, deferFn := tracing.StartTracing(ctx, "ibd.WitnessSyncer.Run",
		tracing.WithLogMessage(w.logger, "syncing witnesses [%d, %d)", start, target))
	defer deferFn()

	for h := start; h < target; h++ {
		if abort.Aborted() {
			return nil
		}

		count, err := w.store.CountTrustedIdentities(ctx, h)
		if err != nil {
			return errors.NewStorageError("count trusted identities at %d", h, err)
		}
		if count >= w.minimum {
			continue
		}

		witnesses, err := w.requester.RequestWitnesses(ctx, h)
		if err != nil {
			return errors.NewNetworkError("request witnesses at %d", h, err)
		}

		for _, wit := range witnesses {
			if err := w.processWitness(ctx, h, wit); err != nil {
				w.logger.Warnf("dropping witness for block %d: %v", h, err)
			}
		}

		if progress != nil && progress.ShouldSaveCheckpoint(h) {
			if err := progress.SaveCheckpoint(ctx, h); err != nil {
				return err
			}
		}
	}

	if progress != nil && target > start {
		if err := progress.SaveCheckpoint(ctx, target-1); err != nil {
			return err
		}
	}

	return nil
}

// processWitness verifies, deduplicates, and persists one inbound
// witness, mirroring §4.6's inbound witness processing.
func (w *WitnessSyncer) processWitness(ctx context.Context, height uint64, wit *model.BlockWitness) error {
	hdr, err := w.store.GetHeaderByHeight(ctx, height)
	if err != nil {
		return err
	}

	canonical := model.CanonicalBytes(height, hdr.ChecksumRoot)
	valid, identity := w.verifier.VerifyTrustedSignature(canonical, wit.Signature, wit.PublicKey)
	if !valid {
		return errors.NewInvalidSignatureError("witness signature not in active trusted set")
	}

	wit.Trusted = true
	wit.Identity = identity

	if err := w.store.InsertWitness(ctx, wit); err != nil {
		return err
	}

	count, err := w.store.CountTrustedIdentities(ctx, height)
	if err == nil && count >= w.minimum {
		w.logger.Infof("block %d witnesses complete (%d trusted)", height, count)
	}

	return nil
}
