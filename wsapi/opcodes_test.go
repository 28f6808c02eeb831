package wsapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RejectsCollision(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, conn *Connection, payload []byte) (interface{}, error) { return nil, nil }

	require.NoError(t, r.Register(Route{Opcode: OpGetBlock, ResponseOpcode: OpResponse, Handler: handler}))
	require.Error(t, r.Register(Route{Opcode: OpGetBlock, ResponseOpcode: OpResponse, Handler: handler}))
}

func TestRegistry_RejectsOpcodeAtOrAboveThreshold(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, conn *Connection, payload []byte) (interface{}, error) { return nil, nil }

	err := r.Register(Route{Opcode: ErrorThreshold, ResponseOpcode: OpResponse, Handler: handler})
	require.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, conn *Connection, payload []byte) (interface{}, error) { return nil, nil }
	require.NoError(t, r.Register(Route{Opcode: OpGetChainTip, ResponseOpcode: OpResponse, Handler: handler}))

	route, ok := r.Lookup(OpGetChainTip)
	require.True(t, ok)
	require.Equal(t, OpResponse, route.ResponseOpcode)

	_, ok = r.Lookup(OpGetBlock)
	require.False(t, ok)
}
