package ibd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/ordishs/gocore"
)

const progressStateKey = "ibd_progress"

// ProgressTracker persists IBD progress to the document store and
// rate-limits checkpoint writes. It implements checksum.ProgressRecorder.
type ProgressTracker struct {
	store             document.Store
	checkpointEvery   uint64
	lastCheckpointAt  uint64
	haveCheckpointed  bool
	phase             model.Phase
	startHeight       uint64
	targetHeight      uint64
	counters          map[string]uint64
}

// NewProgressTracker builds a tracker for phase over [start, target).
func NewProgressTracker(store document.Store, phase model.Phase, start, target uint64) *ProgressTracker {
	checkpointEvery, _ := gocore.Config().GetInt("ibd_checkpoint_every", 1000)
	return &ProgressTracker{
		store:           store,
		checkpointEvery: uint64(checkpointEvery),
		phase:           phase,
		startHeight:     start,
		targetHeight:    target,
		counters:        make(map[string]uint64),
	}
}

// ShouldSaveCheckpoint rate-limits checkpoint writes: at most once every
// checkpointEvery heights, plus always on the first call.
func (t *ProgressTracker) ShouldSaveCheckpoint(height uint64) bool {
	if !t.haveCheckpointed {
		return true
	}
	return height-t.lastCheckpointAt >= t.checkpointEvery
}

// SaveCheckpoint persists (phase, current_height), never moving
// current_height ahead of height, which the caller must guarantee is
// actually-completed work.
func (t *ProgressTracker) SaveCheckpoint(ctx context.Context, height uint64) error {
	progress := &model.IBDProgress{
		Phase:            t.phase,
		StartHeight:      t.startHeight,
		CurrentHeight:    height,
		TargetHeight:     t.targetHeight,
		LastCheckpointAt: time.Now().UTC(),
		Counters:         t.counters,
	}

	data, err := json.Marshal(progress)
	if err != nil {
		return errors.NewStorageError("marshal ibd progress", err)
	}

	if err := t.store.SetState(ctx, progressStateKey, data); err != nil {
		return err
	}

	t.lastCheckpointAt = height
	t.haveCheckpointed = true
	return nil
}

// IncrementCounter bumps a named counter (e.g. "headers_downloaded").
func (t *ProgressTracker) IncrementCounter(name string, delta uint64) {
	t.counters[name] += delta
}

// LoadProgress reads the last persisted checkpoint, if any.
func LoadProgress(ctx context.Context, store document.Store) (*model.IBDProgress, error) {
	data, err := store.GetState(ctx, progressStateKey)
	if err != nil {
		return nil, errors.NewStorageError("load ibd progress", err)
	}
	if data == nil {
		return nil, nil
	}

	var progress model.IBDProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, errors.NewStorageError("unmarshal ibd progress", err)
	}
	return &progress, nil
}
