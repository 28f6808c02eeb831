package plugin

import (
	"context"

	"github.com/opnet-chain/opnetd/errors"
)

// DisableAndUnload runs a plugin's shutdown sequence: Disable (only if
// currently ENABLED), then Unload; a failed Disable returns without
// running Unload. The worker is detached on every return, failed or
// not - a crashed or half-unloaded plugin must never keep occupying a
// worker slot.
func (m *Manager) DisableAndUnload(ctx context.Context, p *Plugin) error {
	w, ok := m.workers[p.ID]
	if !ok {
		return errors.NewServiceNotStartedError("plugin %s: no running worker to stop", p.ID)
	}
	defer m.detachWorker(p.ID)

	if p.Lifecycle.State() == StateEnabled {
		if err := w.Disable(ctx); err != nil {
			_ = p.Lifecycle.Transition(StateCrashed)
			return err
		}
		if err := p.Lifecycle.Transition(StateDisabled); err != nil {
			return err
		}
	}

	if err := p.Lifecycle.Transition(StateUnloading); err != nil {
		return err
	}

	if err := w.Unload(ctx); err != nil {
		_ = p.Lifecycle.Transition(StateCrashed)
		return err
	}

	return nil
}
