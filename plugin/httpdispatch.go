package plugin

import (
	"context"
	"strings"

	"github.com/opnet-chain/opnetd/errors"
)

// HTTPRequest is the inbound payload handed to a plugin's HTTP handler.
type HTTPRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   []byte
}

// HTTPResponse is a plugin HTTP handler's reply, relayed back through
// httpapi verbatim.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
	ContentType string
}

// HTTPHandler is implemented by a Module that serves one or more of its
// metadata's declared HTTPRoutes. Kept separate from Module itself
// since most plugins (hook-only) never need it.
type HTTPHandler interface {
	HandleHTTP(ctx context.Context, req HTTPRequest) (HTTPResponse, error)
}

// DispatchHTTP runs req through module's HTTPHandler under the worker's
// budget and panic/timeout recovery, per the same isolation rules as
// Dispatch.
func (w *Worker) DispatchHTTP(ctx context.Context, req HTTPRequest) (HTTPResponse, error) {
	handler, ok := w.module.(HTTPHandler)
	if !ok {
		return HTTPResponse{}, errors.NewNotImplementedError("plugin %s: does not implement an HTTP handler", w.pluginID)
	}

	var resp HTTPResponse
	err := w.run(ctx, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = handler.HandleHTTP(ctx, req)
		return innerErr
	})
	return resp, err
}

// RouteHTTP resolves the plugin registered under id and the HTTPRoute
// within its metadata matching method+path, enforcing that the plugin
// is enabled and declares the route, per spec.md §6's "method declared
// in the plugin metadata" rule.
func (m *Manager) RouteHTTP(id, method, path string) (*Plugin, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return nil, errors.NewNotFoundError("plugin %s: not found", id)
	}
	if !p.Lifecycle.IsEnabled() {
		return nil, errors.NewPluginNotPermittedError("plugin %s: not enabled", id)
	}

	for _, route := range p.Metadata.HTTPRoutes {
		if strings.EqualFold(route.Method, method) && route.Path == path {
			return p, nil
		}
	}
	return nil, errors.NewNotFoundError("plugin %s: no route %s %s", id, method, path)
}

// DispatchHTTPRequest routes req to id's worker after RouteHTTP confirms
// the route is declared and the plugin is enabled.
func (m *Manager) DispatchHTTPRequest(ctx context.Context, id string, req HTTPRequest) (HTTPResponse, error) {
	p, err := m.RouteHTTP(id, req.Method, req.Path)
	if err != nil {
		return HTTPResponse{}, err
	}

	worker, ok := m.workers[p.ID]
	if !ok {
		return HTTPResponse{}, errors.NewNotFoundError("plugin %s: no attached worker", id)
	}

	resp, err := worker.DispatchHTTP(ctx, req)
	if err != nil {
		_ = p.Lifecycle.Transition(StateCrashed)
		return HTTPResponse{}, err
	}
	return resp, nil
}
