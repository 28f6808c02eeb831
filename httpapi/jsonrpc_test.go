package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/plugin"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

func TestJSONRPC_DispatchesToSharedHandler(t *testing.T) {
	r, store := newTestRouter(t)
	require.NoError(t, store.UpdateHeaders(context.Background(), []*model.BlockHeader{{Height: 3}}))

	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  "header",
		Params:  json.RawMessage(`{"height":"3"}`),
		ID:      json.RawMessage(`1`),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/json-rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestJSONRPC_UnknownMethod(t *testing.T) {
	r, _ := newTestRouter(t)

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", Method: "doesnotexist", ID: json.RawMessage(`2`)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/json-rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

type echoHTTPModule struct{}

func (echoHTTPModule) Load(context.Context, map[string]string, plugin.NetworkInfo) error { return nil }
func (echoHTTPModule) Enable(context.Context) error                                      { return nil }
func (echoHTTPModule) Disable(context.Context) error                                     { return nil }
func (echoHTTPModule) Unload(context.Context) error                                      { return nil }
func (echoHTTPModule) HandleHook(context.Context, plugin.HookEvent) error                { return nil }
func (echoHTTPModule) HandleHTTP(ctx context.Context, req plugin.HTTPRequest) (plugin.HTTPResponse, error) {
	return plugin.HTTPResponse{StatusCode: http.StatusOK, Body: req.Body, ContentType: "text/plain"}, nil
}

func TestRouter_PluginRoute_RelaysToModule(t *testing.T) {
	plugin.RegisterModuleFactory("echo-http-main", func() plugin.Module { return echoHTTPModule{} })

	meta := &plugin.Metadata{
		Name: "echoer",
		HTTPRoutes: []plugin.HTTPRoute{
			{Path: "/ping", Method: http.MethodPost},
		},
	}
	p := &plugin.Plugin{ID: "echoer", Metadata: meta, Lifecycle: plugin.NewLifecycle("echoer")}
	require.NoError(t, p.Lifecycle.Transition(plugin.StateValidated))
	require.NoError(t, p.Lifecycle.Transition(plugin.StateLoading))
	require.NoError(t, p.Lifecycle.Transition(plugin.StateLoaded))
	require.NoError(t, p.Lifecycle.Transition(plugin.StateEnabled))

	registry := plugin.NewRegistry()
	registry.Add(p)

	worker, err := plugin.NewWorker(p.ID, "echo-http-main", plugin.ThreadingLimits{})
	require.NoError(t, err)

	manager := plugin.NewManager(registry, ulogger.New("test"))
	manager.AttachWorker(p.ID, worker)

	store := document.NewMemoryStore()
	r := NewRouter(store, manager, Version{ProtocolMajor: 1, Full: "1.0.0-test"}, ulogger.New("test"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/echoer/ping", bytes.NewReader([]byte("hello")))
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}
