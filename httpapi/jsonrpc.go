package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/plugin"
)

// jsonRPCRequest is the JSON-RPC 2.0 envelope spec.md §6 commits to;
// method semantics beyond dispatch into the shared handler table are
// out of scope.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleJSONRPC decodes the envelope and dispatches method against the
// same handler table the GET routes use, so method semantics never
// diverge from the routing shape.
func (r *Router) handleJSONRPC(c echo.Context) error {
	var req jsonRPCRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: -32700, Message: "parse error"},
		})
	}

	handler, ok := r.routes[req.Method]
	if !ok {
		return c.JSON(http.StatusOK, jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &jsonRPCError{Code: -32601, Message: "method not found"},
		})
	}

	result, err := handler(&jsonRPCParamContext{Context: c, params: req.Params}, r.store)
	if err != nil {
		return c.JSON(http.StatusOK, jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &jsonRPCError{Code: -32000, Message: err.Error()},
		})
	}

	return c.JSON(http.StatusOK, jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// jsonRPCParamContext adapts a JSON-RPC params object into the
// echo.Context-shaped param lookups the shared handler table expects,
// so a handler need not know whether it was reached via GET or
// json-rpc. params is a flat {"<name>": "<value>"} object.
type jsonRPCParamContext struct {
	echo.Context
	params json.RawMessage
}

func (j *jsonRPCParamContext) Param(name string) string {
	if len(j.params) == 0 {
		return ""
	}
	var fields map[string]string
	if err := json.Unmarshal(j.params, &fields); err != nil {
		return ""
	}
	return fields[name]
}

// handlePluginRoute relays an HTTP request into the plugin manager
// after resolving the plugin id from the path, per spec.md §6's
// /api/v1/plugins/<id>/<route> shape.
func (r *Router) handlePluginRoute(c echo.Context) error {
	id := c.Param("id")
	route := c.Param("*")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, errors.NewInvalidArgumentError("could not read request body: %v", err))
	}

	query := map[string]string{}
	for k := range c.QueryParams() {
		query[k] = c.QueryParam(k)
	}

	req := plugin.HTTPRequest{
		Method: c.Request().Method,
		Path:   "/" + route,
		Query:  query,
		Body:   body,
	}
	resp, err := r.plugins.DispatchHTTPRequest(c.Request().Context(), id, req)
	if err != nil {
		return writeError(c, err)
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}
