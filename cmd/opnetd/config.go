package main

import (
	"time"

	"github.com/opnet-chain/opnetd/p2p"
	"github.com/ordishs/gocore"
)

// config is the set of tunables main reads out of gocore.Config() to
// wire its subsystems, gathered in one place the way the teacher's
// main.go instead spreads gocore.Config() calls inline through
// startServices - collected here since a single opnetd process wires
// every subsystem at once rather than choosing which of a dozen services
// to start. Some packages (ibd, trustedauthority, p2p) still read their
// own defaults from gocore.Config() directly.
type config struct {
	serviceName string

	sqliteDSN string
	pluginDir string

	httpAddr string

	chainID     string
	networkName string
	nodeVersion string

	rpcHost string
	rpcPort int
	rpcUser string
	rpcPass string
	rpcSSL  bool

	p2p    p2p.Config
	topics []string

	blocksPerEpoch   uint64
	minimumWitnesses int
	ibdPollInterval  time.Duration

	taAutoAcceptUpgrade bool
	trustedSetPath      string

	tracingEnabled      bool
	tracingSamplingRate float64

	healthCheckPort int
}

func loadConfig() config {
	cfg := gocore.Config()

	serviceName, _ := cfg.Get("SERVICE_NAME", "opnetd")
	sqliteDSN, _ := cfg.Get("opnetd_sqlite_dsn", "opnetd.db")
	pluginDir, _ := cfg.Get("opnetd_plugin_dir", "")
	httpAddr, _ := cfg.Get("opnetd_http_addr", ":8000")

	chainID, _ := cfg.Get("opnetd_chain_id", "mainnet")
	networkName, _ := cfg.Get("opnetd_network", "bitcoin")
	nodeVersion, _ := cfg.Get("opnetd_node_version", "1.0.0")

	rpcHost, _ := cfg.Get("rpc_host", "127.0.0.1")
	rpcPort, _ := cfg.GetInt("rpc_port", 8332)
	rpcUser, _ := cfg.Get("rpc_user", "")
	rpcPass, _ := cfg.Get("rpc_pass", "")
	rpcSSL := cfg.GetBool("rpc_use_ssl", false)

	p2pIP, _ := cfg.Get("p2p_ip", "0.0.0.0")
	p2pPort, _ := cfg.GetInt("p2p_port", 9909)
	p2pPrivateKey, _ := cfg.Get("p2p_private_key", "")
	p2pSharedKey, _ := cfg.Get("p2p_shared_key", "")
	p2pUsePrivateDHT := cfg.GetBool("p2p_use_private_dht", false)
	p2pAdvertise := cfg.GetBool("p2p_advertise", true)
	staticPeers, _ := cfg.GetMulti("p2p_static_peers", "|")
	topics, _ := cfg.GetMulti("opnetd_gossip_topics", "|")
	if len(topics) == 0 {
		topics = []string{"opnet-witness"}
	}

	blocksPerEpoch, _ := cfg.GetInt("opnetd_blocks_per_epoch", 2016)
	minimumWitnesses, _ := cfg.GetInt("opnetd_minimum_witnesses", 3)
	pollSeconds, _ := cfg.GetInt("opnetd_ibd_poll_seconds", 10)

	samplingRate, _ := cfg.GetInt("opnetd_tracing_sample_rate_permille", 10)

	healthPort, _ := cfg.GetInt("health_check_port", 8080)

	trustedSetPath, _ := cfg.Get("opnetd_trusted_authority_set_path", "")

	return config{
		serviceName: serviceName,
		sqliteDSN:   sqliteDSN,
		pluginDir:   pluginDir,
		httpAddr:    httpAddr,

		chainID:     chainID,
		networkName: networkName,
		nodeVersion: nodeVersion,

		rpcHost: rpcHost,
		rpcPort: rpcPort,
		rpcUser: rpcUser,
		rpcPass: rpcPass,
		rpcSSL:  rpcSSL,

		p2p: p2p.Config{
			ProcessName:     serviceName,
			IP:              p2pIP,
			Port:            p2pPort,
			PrivateKey:      p2pPrivateKey,
			SharedKey:       p2pSharedKey,
			UsePrivateDHT:   p2pUsePrivateDHT,
			OptimiseRetries: true,
			Advertise:       p2pAdvertise,
			StaticPeers:     staticPeers,
		},
		topics: topics,

		blocksPerEpoch:   uint64(blocksPerEpoch),
		minimumWitnesses: minimumWitnesses,
		ibdPollInterval:  time.Duration(pollSeconds) * time.Second,

		taAutoAcceptUpgrade: cfg.GetBool("opnetd_ta_auto_accept_upgrade", false),
		trustedSetPath:      trustedSetPath,

		tracingEnabled:      cfg.GetBool("opnetd_tracing_enabled", true),
		tracingSamplingRate: float64(samplingRate) / 1000.0,

		healthCheckPort: healthPort,
	}
}
