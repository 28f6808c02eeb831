package ibd

import (
	"context"

	"github.com/opnet-chain/opnetd/checksum"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/looplab/fsm"
)

const stateDone = "DONE"
const stateFailed = "FAILED"

// ProgressRecorder is the checkpoint interface the phases share with the
// checksum engine.
type ProgressRecorder = checksum.ProgressRecorder

// Orchestrator runs the four IBD phases in order — HEADER_DOWNLOAD,
// CHECKSUM_GENERATION, WITNESS_SYNC, EPOCH_FINALIZATION — checkpointing
// and resuming via the document store, and hands off to steady-state
// indexing on success.
type Orchestrator struct {
	store            document.Store
	headerDownloader *HeaderDownloader
	checksumEngine   *checksum.Engine
	witnessSyncer    *WitnessSyncer
	epochFinalizer   *EpochFinalizer
	logger           ulogger.Logger

	machine     *fsm.FSM
	failedPhase model.Phase
}

// NewOrchestrator wires the four phases together.
func NewOrchestrator(
	store document.Store,
	headerDownloader *HeaderDownloader,
	checksumEngine *checksum.Engine,
	witnessSyncer *WitnessSyncer,
	epochFinalizer *EpochFinalizer,
	logger ulogger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		headerDownloader: headerDownloader,
		checksumEngine:   checksumEngine,
		witnessSyncer:    witnessSyncer,
		epochFinalizer:   epochFinalizer,
		logger:           logger.New("ibd-orchestrator"),
	}

	o.machine = fsm.NewFSM(
		string(model.PhaseHeaderDownload),
		fsm.Events{
			{Name: "advance", Src: []string{string(model.PhaseHeaderDownload)}, Dst: string(model.PhaseChecksumGeneration)},
			{Name: "advance", Src: []string{string(model.PhaseChecksumGeneration)}, Dst: string(model.PhaseWitnessSync)},
			{Name: "advance", Src: []string{string(model.PhaseWitnessSync)}, Dst: string(model.PhaseEpochFinalization)},
			{Name: "advance", Src: []string{string(model.PhaseEpochFinalization)}, Dst: stateDone},
			{Name: "fail", Src: []string{
				string(model.PhaseHeaderDownload), string(model.PhaseChecksumGeneration),
				string(model.PhaseWitnessSync), string(model.PhaseEpochFinalization),
			}, Dst: stateFailed},
		},
		fsm.Callbacks{},
	)

	return o
}

// Run brings the node from whatever the last checkpoint recorded up to
// target. Running it again after a successful completion is a no-op
// (spec §8 idempotence): every phase's resume height is already at or
// past target, so each Run call below does zero work.
func (o *Orchestrator) Run(ctx context.Context, target uint64, minimumWitnesses int) error {
	ctx, _, deferFn := tracing.StartTracing(ctx, "ibd.Orchestrator.Run",
		tracing.WithLogMessage(o.logger, "IBD to height %d", target))
	defer deferFn()

	progress, err := LoadProgress(ctx, o.store)
	if err != nil {
		return err
	}
	if progress != nil {
		o.machine.SetState(string(progress.Phase))
	}

	abort := NewAbortSignal(ctx)

	for o.machine.Current() != stateDone {
		phase := model.Phase(o.machine.Current())
		start := o.resumeStart(progress, phase)

		if start >= target && phase != model.PhaseEpochFinalization {
			if err := o.machine.Event(ctx, "advance"); err != nil {
				return errors.NewStateInitializationError("advance past completed phase %s", phase, err)
			}
			continue
		}

		if err := o.runPhase(ctx, phase, start, target, abort, minimumWitnesses); err != nil {
			o.failedPhase = phase
			_ = o.machine.Event(ctx, "fail")
			return errors.NewProcessingError("IBD phase %s failed", phase, err)
		}

		if abort.Aborted() {
			return nil
		}

		if err := o.machine.Event(ctx, "advance"); err != nil {
			return errors.NewStateInitializationError("advance from phase %s", phase, err)
		}

		// Once a phase starts fresh under the machine's new state, resume
		// information from the prior Run call no longer applies.
		progress = nil
	}

	return o.advanceChainTip(ctx, target)
}

// advanceChainTip records the newly-indexed tip once every phase has
// processed [0, target), the only place in the forward-indexing path
// that calls store.SetChainTip. Without this, ChainTip never leaves
// height 0: checkReorg has no baseline to compare against, and every
// reader of GetChainTip (the WS handshake, the /chaintip route, plugin
// blockchain queries) would stay stuck reporting the zero value forever.
func (o *Orchestrator) advanceChainTip(ctx context.Context, target uint64) error {
	if target == 0 {
		return nil
	}

	tipHeight := target - 1
	hdr, err := o.store.GetHeaderByHeight(ctx, tipHeight)
	if err != nil {
		return errors.NewHeaderNotFoundError("missing header at new tip %d", tipHeight, err)
	}

	return o.store.SetChainTip(ctx, document.ChainTip{Height: tipHeight, Hash: hdr.Hash})
}

func (o *Orchestrator) resumeStart(progress *model.IBDProgress, phase model.Phase) uint64 {
	if progress != nil && progress.Phase == phase {
		return progress.CurrentHeight + 1
	}
	return 0
}

func (o *Orchestrator) runPhase(ctx context.Context, phase model.Phase, start, target uint64, abort *AbortSignal, minimumWitnesses int) error {
	switch phase {
	case model.PhaseHeaderDownload:
		tracker := NewProgressTracker(o.store, phase, start, target)
		if err := o.headerDownloader.Run(abort.Context(), start, target); err != nil {
			return err
		}
		return tracker.SaveCheckpoint(ctx, target-1)

	case model.PhaseChecksumGeneration:
		tracker := NewProgressTracker(o.store, phase, start, target)
		return o.checksumEngine.Run(abort.Context(), start, target, tracker)

	case model.PhaseWitnessSync:
		tracker := NewProgressTracker(o.store, phase, start, target)
		return o.witnessSyncer.Run(abort.Context(), start, target, abort, tracker)

	case model.PhaseEpochFinalization:
		tracker := NewProgressTracker(o.store, phase, start, target)
		return o.epochFinalizer.Run(abort.Context(), target, abort, tracker)

	default:
		return errors.NewStateInitializationError("unknown IBD phase %s", phase)
	}
}

// FailedPhase reports the phase that most recently failed, if any.
func (o *Orchestrator) FailedPhase() model.Phase { return o.failedPhase }

// CurrentPhase reports the orchestrator's current FSM state.
func (o *Orchestrator) CurrentPhase() string { return o.machine.Current() }
