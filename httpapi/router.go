// Package httpapi implements the HTTP surface's routing shape: a small
// set of GET routes under /api/v1, a POST /api/v1/json-rpc envelope,
// and plugin routes under /api/v1/plugins/<id>/<route>. Per spec.md,
// JSON-RPC method *semantics* are an external collaborator; this
// package only wires the envelope and dispatches to the same handlers
// the GET routes use.
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/plugin"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

// Version carries the node's protocol major and full version string,
// surfaced on every response via the Protocol/Version headers spec.md
// §6 requires.
type Version struct {
	ProtocolMajor int
	Full          string
}

// handlerFunc answers a GET route or a JSON-RPC method against the
// document store. Both surfaces share the same handler table so
// JSON-RPC method semantics never diverge from the GET routes.
type handlerFunc func(c echo.Context, store document.Store) (interface{}, error)

// Router owns the echo instance and the handler/plugin wiring.
type Router struct {
	echo    *echo.Echo
	store   document.Store
	plugins *plugin.Manager
	version Version
	logger  ulogger.Logger
	routes  map[string]handlerFunc
}

// NewRouter builds a Router with its fixed GET/json-rpc handler table
// and plugin route group. Grounded on services/blockchain/Server.go's
// echo.New()+middleware.Recover()+middleware.CORSWithConfig(AllowOrigins:
// *) setup.
func NewRouter(store document.Store, plugins *plugin.Manager, version Version, logger ulogger.Logger) *Router {
	r := &Router{
		echo:    echo.New(),
		store:   store,
		plugins: plugins,
		version: version,
		logger:  logger.New("httpapi"),
	}
	r.echo.HideBanner = true
	r.echo.HidePort = true

	r.echo.Use(middleware.Recover())
	r.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
	}))
	r.echo.Use(r.protocolHeaders)

	r.routes = map[string]handlerFunc{
		"chaintip":     handleChainTip,
		"header":       handleHeaderByHeight,
		"headerbyhash": handleHeaderByHash,
		"epoch":        handleEpoch,
		"witnesses":    handleWitnesses,
		"transaction":  handleTransaction,
	}

	r.registerRoutes()
	return r
}

func (r *Router) protocolHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Protocol", fmt.Sprintf("OP_NET %d", r.version.ProtocolMajor))
		c.Response().Header().Set("Version", r.version.Full)
		return next(c)
	}
}

func (r *Router) registerRoutes() {
	api := r.echo.Group("/api/v1")

	api.GET("/chaintip", r.wrap("chaintip"))
	api.GET("/header/:height", r.wrap("header"))
	api.GET("/header/hash/:hash", r.wrap("headerbyhash"))
	api.GET("/epoch/:number", r.wrap("epoch"))
	api.GET("/witnesses/:height", r.wrap("witnesses"))
	api.GET("/transaction/:txid", r.wrap("transaction"))

	api.POST("/json-rpc", r.handleJSONRPC)

	api.Any("/plugins/:id/*", r.handlePluginRoute)
}

// MountWebSocket adds handler at GET /api/v1/ws on this Router's echo
// instance, so the node exposes one HTTP listener rather than a second
// server bound to its own port purely for the WebSocket upgrade.
func (r *Router) MountWebSocket(handler echo.HandlerFunc) {
	r.echo.GET("/api/v1/ws", handler)
}

func (r *Router) wrap(route string) echo.HandlerFunc {
	handler := r.routes[route]
	return func(c echo.Context) error {
		result, err := handler(c, r.store)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

// writeError maps an errors.Error onto an HTTP status and the
// `{error: string}` body shape spec.md §7 specifies for the HTTP
// surface.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	if opnetErr, ok := err.(*errors.Error); ok {
		switch opnetErr.Code {
		case errors.ERR_NOT_FOUND, errors.ERR_BLOCK_NOT_FOUND, errors.ERR_HEADER_NOT_FOUND:
			status = http.StatusNotFound
		case errors.ERR_INVALID_ARGUMENT, errors.ERR_VALIDATION_ERROR:
			status = http.StatusBadRequest
		case errors.ERR_NOT_IMPLEMENTED:
			status = http.StatusNotImplemented
		case errors.ERR_PLUGIN_NOT_PERMITTED, errors.ERR_PLUGIN_ACCESS_DENIED:
			status = http.StatusForbidden
		}
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func handleChainTip(c echo.Context, store document.Store) (interface{}, error) {
	return store.GetChainTip(c.Request().Context())
}

func handleHeaderByHeight(c echo.Context, store document.Store) (interface{}, error) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid height %q", c.Param("height"))
	}
	return store.GetHeaderByHeight(c.Request().Context(), height)
}

func handleHeaderByHash(c echo.Context, store document.Store) (interface{}, error) {
	hash, err := chainhash.NewHashFromStr(c.Param("hash"))
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid hash %q", c.Param("hash"))
	}
	return store.GetHeaderByHash(c.Request().Context(), *hash)
}

func handleEpoch(c echo.Context, store document.Store) (interface{}, error) {
	number, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid epoch number %q", c.Param("number"))
	}
	return store.GetEpoch(c.Request().Context(), number)
}

func handleWitnesses(c echo.Context, store document.Store) (interface{}, error) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid height %q", c.Param("height"))
	}
	return store.GetWitnesses(c.Request().Context(), height)
}

func handleTransaction(c echo.Context, store document.Store) (interface{}, error) {
	hash, err := chainhash.NewHashFromStr(c.Param("txid"))
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid txid %q", c.Param("txid"))
	}
	return store.GetTransaction(c.Request().Context(), *hash)
}

// Start runs the HTTP server in the background, mirroring
// services/blockchain/Server.go's `go func() { e.Start(addr) }()`
// pattern rather than blocking the caller.
func (r *Router) Start(addr string) {
	go func() {
		if err := r.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			r.logger.Errorf("httpapi: server stopped: %v", err)
		}
	}()
}

// Shutdown stops the HTTP server.
func (r *Router) Shutdown() error {
	return r.echo.Close()
}
