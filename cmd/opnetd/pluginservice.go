package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/plugin"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

// pluginLoader implements plugin.Loader: it turns a .opnet file on disk
// into a validated *plugin.Plugin, and drives one plugin's load/enable
// or disable/unload sequence. Kept as its own type rather than a method
// set on pluginService since Loader's Start(ctx, *Plugin) and
// servicemanager.Service's Start(ctx) can't share one method name on a
// single receiver.
type pluginLoader struct {
	manager *plugin.Manager
	network plugin.NetworkInfo
	logger  ulogger.Logger
}

func (l *pluginLoader) LoadFile(path string) (*plugin.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file, err := plugin.ParsePluginFile(data)
	if err != nil {
		return nil, err
	}

	meta, err := plugin.ParseMetadata(file.MetadataJSON)
	if err != nil {
		return nil, err
	}

	ok, err := meta.SatisfiesOpnetVersion(l.network.NodeVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewSemverMismatchError("plugin %s requires node version %s, running %s", meta.Name, meta.OpnetVersion, l.network.NodeVersion)
	}

	p := &plugin.Plugin{
		ID:        meta.Name,
		FilePath:  path,
		Metadata:  meta,
		File:      file,
		Lifecycle: plugin.NewLifecycle(meta.Name),
	}
	if err := p.Lifecycle.Transition(plugin.StateValidated); err != nil {
		return nil, err
	}
	return p, nil
}

// Start loads and enables p: resolves its worker, runs Module.Load,
// then Module.Enable, advancing the lifecycle one step per success.
func (l *pluginLoader) Start(ctx context.Context, p *plugin.Plugin) error {
	if err := p.Lifecycle.Transition(plugin.StateLoading); err != nil {
		return err
	}

	worker, err := plugin.NewWorker(p.ID, p.Metadata.Main, p.Metadata.Permissions.Threading)
	if err != nil {
		return err
	}

	if err := worker.Load(ctx, nil, l.network); err != nil {
		return err
	}
	if err := p.Lifecycle.Transition(plugin.StateLoaded); err != nil {
		return err
	}

	l.manager.AttachWorker(p.ID, worker)

	if err := worker.Enable(ctx); err != nil {
		return err
	}
	return p.Lifecycle.Transition(plugin.StateEnabled)
}

// Stop disables and unloads p.
func (l *pluginLoader) Stop(ctx context.Context, p *plugin.Plugin) error {
	return l.manager.DisableAndUnload(ctx, p)
}

// pluginService owns plugin discovery, initial load order, startup
// reindex, and (when a watch directory is configured) hot reload.
type pluginService struct {
	dir      string
	registry *plugin.Registry
	manager  *plugin.Manager
	loader   *pluginLoader
	store    document.Store
	watcher  *plugin.Watcher
	logger   ulogger.Logger

	lastErr error
}

func newPluginService(dir string, registry *plugin.Registry, manager *plugin.Manager, store document.Store, network plugin.NetworkInfo, logger ulogger.Logger) *pluginService {
	logger = logger.New("plugin-service")
	return &pluginService{
		dir:      dir,
		registry: registry,
		manager:  manager,
		loader:   &pluginLoader{manager: manager, network: network, logger: logger},
		store:    store,
		logger:   logger,
	}
}

func (s *pluginService) Init(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".opnet" {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		p, err := s.loader.LoadFile(path)
		if err != nil {
			s.logger.Warnf("skipping plugin %s: %v", path, err)
			continue
		}
		s.registry.Add(p)
	}

	ordered, err := s.registry.ResolveDependencies()
	if err != nil {
		return err
	}

	for _, p := range ordered {
		if err := s.loader.Start(ctx, p); err != nil {
			s.logger.Warnf("plugin %s failed to start: %v", p.ID, err)
		}
	}

	return plugin.Reindex(ctx, s.store, s.manager)
}

func (s *pluginService) Start(ctx context.Context) error {
	if s.dir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := plugin.NewWatcher(s.dir, s.registry, s.loader, s.logger)
	if err != nil {
		s.logger.Warnf("hot reload disabled: %v", err)
		<-ctx.Done()
		return nil
	}
	s.watcher = watcher

	watcher.Run(ctx)
	return nil
}

func (s *pluginService) Stop(ctx context.Context) error {
	order, err := s.registry.GetUnloadOrder()
	if err != nil {
		return err
	}
	for _, p := range order {
		if err := s.loader.Stop(ctx, p); err != nil {
			s.logger.Warnf("plugin %s failed to stop cleanly: %v", p.ID, err)
		}
	}
	return nil
}

func (s *pluginService) Health(ctx context.Context) (int, string, error) {
	if s.lastErr != nil {
		return http.StatusServiceUnavailable, s.lastErr.Error(), nil
	}
	return http.StatusOK, "OK", nil
}
