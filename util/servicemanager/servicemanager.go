// Package servicemanager runs the node's long-lived subsystems
// (IBD orchestrator, P2P, HTTP/WebSocket server, plugin manager) as a
// fixed set, each owning its own goroutine, and answers the
// combined liveness/readiness probe main.go exposes on /health.
package servicemanager

import (
	"context"
	"net/http"
	"sync"

	"github.com/opnet-chain/opnetd/ulogger"
	"golang.org/x/sync/errgroup"
)

// Service is anything with an Init/Start/Stop/Health lifecycle. Every
// top-level subsystem in the node implements it.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (status int, details string, err error)
}

type namedService struct {
	name    string
	service Service
}

type ServiceManager struct {
	logger   ulogger.Logger
	mu       sync.Mutex
	services []namedService
	group    *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServiceManager returns a manager bound to a derived, cancellable context.
func NewServiceManager(logger ulogger.Logger) (*ServiceManager, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	sm := &ServiceManager{
		logger: logger,
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}

	return sm, gctx
}

// AddService registers and immediately starts a service under the manager's
// supervision. Init is called synchronously so configuration errors
// surface before Start (which may block forever) begins.
func (sm *ServiceManager) AddService(name string, service Service) error {
	if err := service.Init(sm.ctx); err != nil {
		return err
	}

	sm.mu.Lock()
	sm.services = append(sm.services, namedService{name: name, service: service})
	sm.mu.Unlock()

	sm.group.Go(func() error {
		sm.logger.Infof("[ServiceManager] starting %s", name)

		if err := service.Start(sm.ctx); err != nil {
			sm.logger.Errorf("[ServiceManager] %s stopped: %v", name, err)
			return err
		}

		return nil
	})

	return nil
}

// Wait blocks until every service's Start call returns, returning the first
// non-nil error (if any). Triggers a coordinated Stop on the way out.
func (sm *ServiceManager) Wait() error {
	err := sm.group.Wait()
	sm.stopAll()
	return err
}

// Shutdown cancels the manager's context and stops every service, for use
// from a signal handler.
func (sm *ServiceManager) Shutdown() {
	sm.cancel()
	sm.stopAll()
}

func (sm *ServiceManager) stopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	stopCtx := context.Background()

	for _, ns := range sm.services {
		if err := ns.service.Stop(stopCtx); err != nil {
			sm.logger.Errorf("[ServiceManager] error stopping %s: %v", ns.name, err)
		}
	}
}

// HealthHandler aggregates every service's Health call. liveness=true
// returns OK without consulting any service; liveness=false (readiness)
// calls each service's Health and surfaces the first unhealthy service's
// details.
func (sm *ServiceManager) HealthHandler(ctx context.Context, liveness bool) (int, string, error) {
	sm.mu.Lock()
	services := make([]namedService, len(sm.services))
	copy(services, sm.services)
	sm.mu.Unlock()

	if liveness {
		return http.StatusOK, "OK", nil
	}

	for _, ns := range services {
		status, details, err := ns.service.Health(ctx)
		if err != nil || status != http.StatusOK {
			return status, ns.name + ": " + details, err
		}
	}

	return http.StatusOK, "OK", nil
}
