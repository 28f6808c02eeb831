package p2p

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	crypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/pnet"
	"github.com/libp2p/go-libp2p/core/protocol"
	dRouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dUtil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/ordishs/gocore"
)

// opnetProtocolID is the application stream protocol for witness gossip
// and handshake exchange, the direct generalization of the teacher's
// bitcoinProtocolID.
const opnetProtocolID = "/opnet/gossip/1.0.0"

// Config mirrors the teacher's P2PConfig, generalized to an OP_NET node:
// private key material, listen address, optional private-network shared
// key, static peer list, and DHT advertisement behavior.
type Config struct {
	ProcessName     string
	IP              string
	Port            int
	PrivateKey      string
	SharedKey       string
	UsePrivateDHT   bool
	OptimiseRetries bool
	Advertise       bool
	StaticPeers     []string
}

// Node is the P2P stream manager and peer session owner: it wraps a
// libp2p host, a gossipsub router for witness/mempool topics, the
// reusable-stream manager, the blacklist, and per-peer sessions.
type Node struct {
	config Config
	host   host.Host
	pubSub *pubsub.PubSub
	topics map[string]*pubsub.Topic

	sessions  sync.Map // peer.ID -> *PeerSession
	blacklist *Blacklist
	streams   *StreamManager
	mempool   *KnownMempoolIDs

	logger    ulogger.Logger
	startTime time.Time
}

// NewNode builds a Node and its libp2p host, grounded on the teacher's
// util/p2p.NewP2PNode: same private-key bootstrap (load-from-file,
// generate-on-first-run, or hex-decode an explicit key), same optional
// pre-shared-key private network. The inbound handler is nil until
// SetInboundHandler is called, since handlers such as Gossip are
// constructed from the Node itself.
func NewNode(logger ulogger.Logger, config Config) (*Node, error) {
	logger = logger.New("p2p-node")
	logger.Infof("creating node")

	pk, err := loadOrGeneratePrivateKey(config)
	if err != nil {
		return nil, err
	}

	var h host.Host
	if config.UsePrivateDHT {
		h, err = newPrivateHost(config, pk)
	} else {
		h, err = libp2p.New(
			libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", config.IP, config.Port)),
			libp2p.Identity(pk),
		)
	}
	if err != nil {
		return nil, errors.NewServiceError("create libp2p host", err)
	}

	logger.Infof("peer ID: %s", h.ID().String())

	n := &Node{
		config:    config,
		logger:    logger,
		host:      h,
		topics:    make(map[string]*pubsub.Topic),
		blacklist: NewBlacklist(),
		mempool:   NewKnownMempoolIDs(10 * time.Second),
		startTime: time.Now(),
	}
	n.streams = NewStreamManager(h, protocol.ID(opnetProtocolID), nil, n.blacklist, logger)

	return n, nil
}

// SetInboundHandler installs the application message handler, typically
// (*Gossip).HandleInbound once Gossip has been constructed with this Node.
func (n *Node) SetInboundHandler(handler InboundHandler) {
	n.streams.SetHandler(handler)
}

func loadOrGeneratePrivateKey(config Config) (crypto.PrivKey, error) {
	if config.PrivateKey != "" {
		return decodeHexEd25519PrivateKey(config.PrivateKey)
	}

	filename := fmt.Sprintf("%s.%s.p2p.private_key", config.ProcessName, gocore.Config().GetContext())
	if pk, err := readPrivateKey(filename); err == nil {
		return pk, nil
	}
	return generatePrivateKey(filename)
}

func newPrivateHost(config Config, pk crypto.PrivKey) (host.Host, error) {
	s := fmt.Sprintln("/key/swarm/psk/1.0.0/") + fmt.Sprintln("/base16/") + config.SharedKey

	psk, err := pnet.DecodeV1PSK(bytes.NewBuffer([]byte(s)))
	if err != nil {
		return nil, errors.NewInvalidArgumentError("decode shared key", err)
	}

	return libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", config.IP, config.Port)),
		libp2p.Identity(pk),
		libp2p.PrivateNetwork(psk),
	)
}

// Start joins the given pubsub topics, begins static-peer connection
// maintenance, and starts peer discovery via the Kademlia DHT.
func (n *Node) Start(ctx context.Context, topicNames ...string) error {
	n.logger.Infof("starting")

	if len(n.config.StaticPeers) > 0 {
		go n.maintainStaticPeers(ctx)
	}

	go func() {
		if err := n.discoverPeers(ctx, topicNames); err != nil {
			n.logger.Errorf("peer discovery error: %+v", err)
		}
	}()

	ps, err := pubsub.NewGossipSub(ctx, n.host)
	if err != nil {
		return err
	}

	for _, name := range topicNames {
		topic, err := ps.Join(name)
		if err != nil {
			return err
		}
		n.topics[name] = topic
	}
	n.pubSub = ps

	return nil
}

// Close shuts down the libp2p host, terminating every open stream and
// peer connection.
func (n *Node) Close() error {
	return n.host.Close()
}

// HostID returns this node's libp2p peer id.
func (n *Node) HostID() peer.ID { return n.host.ID() }

// Streams exposes the stream manager for sending application messages.
func (n *Node) Streams() *StreamManager { return n.streams }

// Blacklist exposes the blacklist so higher layers can record violations.
func (n *Node) Blacklist() *Blacklist { return n.blacklist }

// Mempool exposes the known-mempool-id de-duplication set.
func (n *Node) Mempool() *KnownMempoolIDs { return n.mempool }

// Session returns (creating if absent) the PeerSession for id.
func (n *Node) Session(id peer.ID) *PeerSession {
	actual, _ := n.sessions.LoadOrStore(id, NewPeerSession(id, ""))
	return actual.(*PeerSession)
}

// AuthenticatedNonLightPeers lists every peer id whose session has
// completed authentication and did not identify as a light client,
// per spec.md §4.6's witness-request fan-out target.
func (n *Node) AuthenticatedNonLightPeers() []peer.ID {
	var out []peer.ID
	n.sessions.Range(func(key, value interface{}) bool {
		sess := value.(*PeerSession)
		if sess.HasAuthenticated() && !sess.IsLight() {
			out = append(out, key.(peer.ID))
		}
		return true
	})
	return out
}

// Publish broadcasts msg on topicName via gossipsub.
func (n *Node) Publish(ctx context.Context, topicName string, msg []byte) error {
	topic, ok := n.topics[topicName]
	if !ok {
		return errors.NewConfigurationError("not joined to topic %s", topicName)
	}
	if err := topic.Publish(ctx, msg); err != nil {
		return errors.NewNetworkError("publish to %s", topicName, err)
	}
	return nil
}

func (n *Node) maintainStaticPeers(ctx context.Context) {
	logged := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if n.connectToStaticPeers(ctx) {
				if !logged {
					n.logger.Infof("all static peers connected")
				}
				logged = true
				time.Sleep(30 * time.Second)
			} else {
				logged = false
				time.Sleep(5 * time.Second)
			}
		}
	}
}

func (n *Node) connectToStaticPeers(ctx context.Context) bool {
	remaining := len(n.config.StaticPeers)

	for _, addr := range n.config.StaticPeers {
		info, err := peer.AddrInfoFromP2pAddr(multiaddr.StringCast(addr))
		if err != nil {
			n.logger.Errorf("bad static peer address %s: %v", addr, err)
			continue
		}

		if n.host.Network().Connectedness(info.ID) == network.Connected {
			remaining--
			continue
		}

		if err := n.host.Connect(ctx, *info); err != nil {
			n.logger.Debugf("static peer connect failed %s: %v", addr, err)
		} else {
			remaining--
		}
	}

	return remaining == 0
}

func (n *Node) discoverPeers(ctx context.Context, topicNames []string) error {
	kademliaDHT, err := dht.New(ctx, n.host, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		return errors.NewServiceError("create DHT", err)
	}
	if err := kademliaDHT.Bootstrap(ctx); err != nil {
		return errors.NewServiceError("bootstrap DHT", err)
	}

	routingDiscovery := dRouting.NewRoutingDiscovery(kademliaDHT)
	if n.config.Advertise {
		for _, name := range topicNames {
			dUtil.Advertise(ctx, routingDiscovery, name)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			n.findAndConnectPeers(ctx, routingDiscovery, topicNames)
			time.Sleep(5 * time.Second)
		}
	}
}

func (n *Node) findAndConnectPeers(ctx context.Context, disc *dRouting.RoutingDiscovery, topicNames []string) {
	var wg sync.WaitGroup
	for _, name := range topicNames {
		wg.Add(1)
		go func(topicName string) {
			defer wg.Done()

			addrChan, err := disc.FindPeers(ctx, topicName)
			if err != nil {
				n.logger.Errorf("find peers for %s: %+v", topicName, err)
				return
			}

			for addr := range addrChan {
				if addr.ID == n.host.ID() {
					continue
				}
				if n.host.Network().Connectedness(addr.ID) == network.Connected {
					continue
				}
				if err := n.host.Connect(ctx, addr); err != nil {
					n.logger.Debugf("connect to %s failed: %v", addr.ID, err)
				}
			}
		}(name)
	}
	wg.Wait()
}

func generatePrivateKey(filename string) (crypto.PrivKey, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	privBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filename, privBytes, 0600); err != nil {
		return nil, err
	}
	return priv, nil
}

func readPrivateKey(filename string) (crypto.PrivKey, error) {
	privBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalPrivateKey(privBytes)
}

func decodeHexEd25519PrivateKey(hexEncoded string) (crypto.PrivKey, error) {
	b, err := hex.DecodeString(hexEncoded)
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalEd25519PrivateKey(b)
}
