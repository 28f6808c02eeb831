package main

import (
	"context"
	"net/http"

	"github.com/opnet-chain/opnetd/httpapi"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/opnet-chain/opnetd/wsapi"
)

// httpService owns the single HTTP listener: the httpapi.Router's
// GET/json-rpc/plugin routes plus the WebSocket upgrade endpoint,
// mounted on the same echo instance so the node binds one port.
type httpService struct {
	router *httpapi.Router
	ws     *wsapi.Server
	addr   string
	logger ulogger.Logger
}

func newHTTPService(router *httpapi.Router, ws *wsapi.Server, addr string, logger ulogger.Logger) *httpService {
	router.MountWebSocket(ws.HandleWebSocket)
	return &httpService{router: router, ws: ws, addr: addr, logger: logger.New("http-service")}
}

func (s *httpService) Init(ctx context.Context) error {
	return nil
}

func (s *httpService) Start(ctx context.Context) error {
	s.router.Start(s.addr)
	<-ctx.Done()
	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.router.Shutdown()
}

func (s *httpService) Health(ctx context.Context) (int, string, error) {
	return http.StatusOK, "OK", nil
}
