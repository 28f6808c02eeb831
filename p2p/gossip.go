package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/ulogger"
)

// Verifier checks a witness signature against the active trusted set;
// satisfied by trustedauthority.Manager.
type Verifier interface {
	VerifyTrustedSignature(data, signature, publicKey []byte) (valid bool, identity [32]byte)
}

// Gossip implements ibd.WitnessRequester and drives block-witness
// request/broadcast over the Node's stream manager, per spec.md §4.6.
type Gossip struct {
	node     *Node
	store    document.Store
	verifier Verifier
	logger   ulogger.Logger
}

// NewGossip wires a Gossip handler onto node, consulting store both to
// answer inbound requests and to persist inbound broadcasts.
// Unsolicited inbound broadcasts are verified against verifier before
// being persisted (spec.md §4.6).
func NewGossip(node *Node, store document.Store, verifier Verifier, logger ulogger.Logger) *Gossip {
	return &Gossip{node: node, store: store, verifier: verifier, logger: logger.New("p2p-gossip")}
}

// RequestWitnesses asks every authenticated non-light peer for witnesses
// at height and returns the union of their answers. Satisfies
// ibd.WitnessRequester by structural typing.
func (g *Gossip) RequestWitnesses(ctx context.Context, height uint64) ([]*model.BlockWitness, error) {
	peers := g.node.AuthenticatedNonLightPeers()
	if len(peers) == 0 {
		return nil, nil
	}

	payload, err := encodeGossipMessage(gossipMessage{Kind: kindWitnessRequest, Height: height})
	if err != nil {
		return nil, err
	}

	var out []*model.BlockWitness
	for _, p := range peers {
		reply, err := g.node.Streams().Request(ctx, p, protocol.ID(opnetProtocolID), payload)
		if err != nil {
			g.logger.Debugf("witness request to %s failed: %v", p, err)
			continue
		}

		resp, err := decodeGossipMessage(reply)
		if err != nil {
			g.logger.Debugf("malformed witness response from %s: %v", p, err)
			continue
		}
		for i := range resp.Witnesses {
			out = append(out, &resp.Witnesses[i])
		}
	}

	return out, nil
}

// BroadcastWitness sends the local node's freshly produced witness to
// every authenticated peer. Serialization happens once; the same bytes
// are sent to every peer, per spec.md §4.6.
func (g *Gossip) BroadcastWitness(ctx context.Context, wit *model.BlockWitness) error {
	payload, err := encodeGossipMessage(gossipMessage{Kind: kindWitnessBroadcast, Witnesses: []model.BlockWitness{*wit}})
	if err != nil {
		return err
	}

	var peers []peer.ID
	g.node.sessions.Range(func(key, value interface{}) bool {
		if value.(*PeerSession).HasAuthenticated() {
			peers = append(peers, key.(peer.ID))
		}
		return true
	})

	for _, p := range peers {
		if err := g.node.Streams().SendMessage(ctx, p, protocol.ID(opnetProtocolID), payload); err != nil {
			g.logger.Debugf("witness broadcast to %s failed: %v", p, err)
		}
	}
	return nil
}

// HandleInbound is installed as the Node's StreamManager.InboundHandler.
// It answers witness requests from the store (the reply is written back
// on the same stream by the stream manager) and persists verified inbound
// broadcasts so they are available on the next store read. An inbound
// witness response is ignored.
func (g *Gossip) HandleInbound(from peer.ID, proto protocol.ID, data []byte) ([]byte, error) {
	ctx := context.Background()

	msg, err := decodeGossipMessage(data)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case kindWitnessRequest:
		witnesses, err := g.store.GetWitnesses(ctx, msg.Height)
		if err != nil {
			return nil, errors.NewStorageError("get witnesses for height %d", msg.Height, err)
		}
		flat := make([]model.BlockWitness, 0, len(witnesses))
		for _, w := range witnesses {
			flat = append(flat, *w)
		}
		return encodeGossipMessage(gossipMessage{Kind: kindWitnessResponse, Height: msg.Height, Witnesses: flat})

	case kindWitnessBroadcast:
		for i := range msg.Witnesses {
			w := &msg.Witnesses[i]
			hdr, err := g.store.GetHeaderByHeight(ctx, w.BlockNumber)
			if err != nil {
				g.logger.Warnf("drop broadcast witness for unknown block %d: %v", w.BlockNumber, err)
				continue
			}
			canonical := model.CanonicalBytes(w.BlockNumber, hdr.ChecksumRoot)
			valid, identity := g.verifier.VerifyTrustedSignature(canonical, w.Signature, w.PublicKey)
			if !valid {
				g.logger.Warnf("dropping broadcast witness with invalid signature for block %d from %s", w.BlockNumber, from)
				g.node.Blacklist().Add(from.String(), ReasonBadSignature)
				continue
			}
			w.Trusted = true
			w.Identity = identity
			if err := g.store.InsertWitness(ctx, w); err != nil {
				g.logger.Warnf("persist gossiped witness: %v", err)
			}
		}
		return nil, nil

	case kindWitnessResponse:
		// Replies are consumed synchronously by Request's caller on the
		// dedicated request stream; an inbound stream never reaches here
		// carrying this kind in the current protocol usage.
		return nil, nil

	default:
		return nil, errors.NewUnknownOpcodeError("unknown gossip message kind %q", msg.Kind)
	}
}
