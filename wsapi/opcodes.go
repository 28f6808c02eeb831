package wsapi

import (
	"context"

	"github.com/opnet-chain/opnetd/errors"
)

// Handler processes a decoded request payload and returns a response
// payload to be gob-encoded under the registered response opcode.
type Handler func(ctx context.Context, conn *Connection, payload []byte) (interface{}, error)

// Route is one request opcode's full registration: its handler, the
// response opcode the handler's return value is framed under, and
// whether a completed handshake is required before this opcode may be
// dispatched.
type Route struct {
	Opcode           Opcode
	ResponseOpcode   Opcode
	RequiresHandshake bool
	Handler          Handler
}

// Registry is the startup-built opcode dispatch table. Registering two
// routes under the same request opcode is an error, matching spec.md
// §4.7's "registry rejects opcode collisions at startup".
type Registry struct {
	routes map[Opcode]Route
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[Opcode]Route)}
}

// Register adds route to the registry, failing on an opcode collision.
func (r *Registry) Register(route Route) error {
	if route.Opcode >= ErrorThreshold {
		return errors.NewConfigurationError("request opcode %d must be below ErrorThreshold %d", route.Opcode, ErrorThreshold)
	}
	if _, exists := r.routes[route.Opcode]; exists {
		return errors.NewConfigurationError("opcode collision registering %d", route.Opcode)
	}
	r.routes[route.Opcode] = route
	return nil
}

// Lookup returns the route for opcode, if any.
func (r *Registry) Lookup(opcode Opcode) (Route, bool) {
	route, ok := r.routes[opcode]
	return route, ok
}
