package main

import (
	"context"
	"net/http"

	"github.com/opnet-chain/opnetd/p2p"
	"github.com/opnet-chain/opnetd/ulogger"
)

// p2pService wraps the libp2p host. Node.Start only launches background
// goroutines and returns, so Start here blocks on the context itself,
// keeping the service's goroutine alive for the service manager's
// errgroup the way every other service does.
type p2pService struct {
	node   *p2p.Node
	topics []string
	logger ulogger.Logger
}

func newP2PService(node *p2p.Node, topics []string, logger ulogger.Logger) *p2pService {
	return &p2pService{node: node, topics: topics, logger: logger.New("p2p-service")}
}

func (s *p2pService) Init(ctx context.Context) error {
	return nil
}

func (s *p2pService) Start(ctx context.Context) error {
	if err := s.node.Start(ctx, s.topics...); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *p2pService) Stop(ctx context.Context) error {
	return s.node.Close()
}

func (s *p2pService) Health(ctx context.Context) (int, string, error) {
	return http.StatusOK, "OK", nil
}
