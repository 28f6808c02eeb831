package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/plugin"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

func newTestRouter(t *testing.T) (*Router, document.Store) {
	t.Helper()
	store := document.NewMemoryStore()
	manager := plugin.NewManager(plugin.NewRegistry(), ulogger.New("test"))
	return NewRouter(store, manager, Version{ProtocolMajor: 1, Full: "1.0.0-test"}, ulogger.New("test")), store
}

func TestRouter_ChainTipSetsProtocolHeaders(t *testing.T) {
	r, store := newTestRouter(t)
	require.NoError(t, store.SetChainTip(context.Background(), document.ChainTip{Height: 42}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chaintip", nil)
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OP_NET 1", rec.Header().Get("Protocol"))
	require.Equal(t, "1.0.0-test", rec.Header().Get("Version"))
	require.Contains(t, rec.Body.String(), "42")
}

func TestRouter_HeaderByHeight_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/header/999", nil)
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "error")
}

func TestRouter_HeaderByHeight_Found(t *testing.T) {
	r, store := newTestRouter(t)
	require.NoError(t, store.UpdateHeaders(context.Background(), []*model.BlockHeader{{Height: 7}}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/header/7", nil)
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_InvalidHeight_BadRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/header/notanumber", nil)
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
