package main

import (
	"context"
	"net/http"
	"time"

	"github.com/opnet-chain/opnetd/ibd"
	"github.com/opnet-chain/opnetd/rpcclient"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

// ibdService drives the orchestrator continuously: each tick it first
// checks the local tip against the remote chain for a reorg, then asks
// the RPC client for its current height and runs the orchestrator with
// that target. A tick whose target equals the last completed run's
// target is a cheap no-op, so polling on an interval is sufficient
// rather than needing a push notification from the RPC client.
type ibdService struct {
	store            document.Store
	client           rpcclient.Client
	orchestrator     *ibd.Orchestrator
	reorg            *ibd.Reorg
	minimumWitnesses int
	pollInterval     time.Duration
	logger           ulogger.Logger

	lastErr error
}

func newIBDService(store document.Store, client rpcclient.Client, orchestrator *ibd.Orchestrator, reorg *ibd.Reorg, minimumWitnesses int, pollInterval time.Duration, logger ulogger.Logger) *ibdService {
	return &ibdService{
		store:            store,
		client:           client,
		orchestrator:     orchestrator,
		reorg:            reorg,
		minimumWitnesses: minimumWitnesses,
		pollInterval:     pollInterval,
		logger:           logger.New("ibd-service"),
	}
}

func (s *ibdService) Init(ctx context.Context) error {
	_, err := s.client.GetBlockCount(ctx)
	return err
}

func (s *ibdService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Errorf("ibd tick: %v", err)
				s.lastErr = err
			} else {
				s.lastErr = nil
			}
		}
	}
}

func (s *ibdService) tick(ctx context.Context) error {
	if err := s.checkReorg(ctx); err != nil {
		return err
	}

	target, err := s.client.GetBlockCount(ctx)
	if err != nil {
		return err
	}

	return s.orchestrator.Run(ctx, target, s.minimumWitnesses)
}

// checkReorg compares the local tip's hash against the remote chain at
// the same height; a mismatch means the remote chain has reorganized
// past what this node last indexed.
func (s *ibdService) checkReorg(ctx context.Context) error {
	tip, err := s.store.GetChainTip(ctx)
	if err != nil {
		return err
	}
	if tip.Height == 0 {
		return nil
	}

	remoteHashes, err := s.client.GetBlockHashes(ctx, tip.Height, 1)
	if err != nil {
		return err
	}
	if len(remoteHashes) == 1 && remoteHashes[0] != nil && *remoteHashes[0] == tip.Hash {
		return nil
	}

	forkHeight, err := s.reorg.FindForkPoint(ctx, tip.Height)
	if err != nil {
		return err
	}
	return s.reorg.Rewind(ctx, forkHeight, "remote chain diverged from local tip")
}

func (s *ibdService) Stop(ctx context.Context) error {
	return nil
}

func (s *ibdService) Health(ctx context.Context) (int, string, error) {
	if s.lastErr != nil {
		return http.StatusServiceUnavailable, s.lastErr.Error(), nil
	}
	return http.StatusOK, "OK", nil
}
