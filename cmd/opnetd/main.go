// Command opnetd runs an OP_NET indexing node: the IBD orchestrator
// chasing a Bitcoin RPC endpoint's tip, the P2P witness-gossip network,
// the HTTP/JSON-RPC/WebSocket query surface, and the plugin runtime, all
// under one servicemanager.ServiceManager.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/ordishs/gocore"

	"github.com/opnet-chain/opnetd/checksum"
	"github.com/opnet-chain/opnetd/httpapi"
	"github.com/opnet-chain/opnetd/ibd"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/p2p"
	"github.com/opnet-chain/opnetd/plugin"
	"github.com/opnet-chain/opnetd/rpcclient"
	"github.com/opnet-chain/opnetd/stores/document"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/trustedauthority"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/opnet-chain/opnetd/util/servicemanager"
	"github.com/opnet-chain/opnetd/wsapi"
)

const progname = "opnetd"

var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
	gocore.Log(progname)
}

func main() {
	cfg := loadConfig()
	logger := initLogger(cfg.serviceName)

	logger.Infof("starting %s %s (%s)", progname, version, commit)

	if cfg.tracingEnabled {
		closer, err := tracing.InitOpenTracer(cfg.serviceName, cfg.tracingSamplingRate)
		if err != nil {
			logger.Warnf("failed to initialize tracer: %v", err)
		} else if closer != nil {
			defer closer()
		}
	}

	store, err := document.NewSQLiteStore(cfg.sqliteDSN)
	if err != nil {
		logger.Fatalf("open document store: %v", err)
	}

	client, err := rpcclient.NewBitcoindClient(cfg.rpcHost, cfg.rpcPort, cfg.rpcUser, cfg.rpcPass, cfg.rpcSSL)
	if err != nil {
		logger.Fatalf("connect to bitcoin rpc: %v", err)
	}

	taManager := trustedauthority.NewManager(trustedauthority.DefaultConstraints(), upgradeDecider(cfg, logger), logger)
	if cfg.trustedSetPath != "" {
		if err := loadTrustedAuthoritySet(context.Background(), taManager, cfg.trustedSetPath); err != nil {
			logger.Fatalf("load trusted authority set: %v", err)
		}
	}

	node, err := p2p.NewNode(logger, cfg.p2p)
	if err != nil {
		logger.Fatalf("create p2p node: %v", err)
	}
	gossip := p2p.NewGossip(node, store, taManager, logger)
	node.SetInboundHandler(gossip.HandleInbound)

	pluginRegistry := plugin.NewRegistry()
	pluginManager := plugin.NewManager(pluginRegistry, logger)

	checksumEngine := checksum.NewEngine(store, logger)
	headerDownloader := ibd.NewHeaderDownloader(client, store, logger, ibd.DefaultHeaderDownloaderConfig())
	witnessSyncer := ibd.NewWitnessSyncer(store, gossip, taManager, cfg.minimumWitnesses, logger)
	epochFinalizer := ibd.NewEpochFinalizer(store, cfg.blocksPerEpoch, cfg.minimumWitnesses, logger)
	orchestrator := ibd.NewOrchestrator(store, headerDownloader, checksumEngine, witnessSyncer, epochFinalizer, logger)
	reorg := ibd.NewReorg(store, client, pluginManager, logger)

	wsRegistry := wsapi.NewRegistry()
	chainInfo := newChainTipCache(context.Background(), store, cfg.chainID)
	wsServer := wsapi.NewServer(wsRegistry, version, chainInfo, logger)

	router := httpapi.NewRouter(store, pluginManager, httpapi.Version{ProtocolMajor: 1, Full: version}, logger)

	networkInfo := plugin.NetworkInfo{ChainID: cfg.chainID, NetworkName: cfg.networkName, NodeVersion: cfg.nodeVersion}

	sm, smCtx := servicemanager.NewServiceManager(logger)

	mustAddService(logger, sm, "ibd", newIBDService(store, client, orchestrator, reorg, cfg.minimumWitnesses, cfg.ibdPollInterval, logger))
	mustAddService(logger, sm, "p2p", newP2PService(node, cfg.topics, logger))
	mustAddService(logger, sm, "http", newHTTPService(router, wsServer, cfg.httpAddr, logger))
	mustAddService(logger, sm, "plugins", newPluginService(cfg.pluginDir, pluginRegistry, pluginManager, store, networkInfo, logger))

	startHealthEndpoint(smCtx, sm, cfg.healthCheckPort, logger)

	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("closing document store: %v", err)
		}
	}()

	if err := sm.Wait(); err != nil {
		logger.Errorf("services failed: %v", err)
	}
}

func mustAddService(logger ulogger.Logger, sm *servicemanager.ServiceManager, name string, svc servicemanager.Service) {
	if err := sm.AddService(name, svc); err != nil {
		logger.Fatalf("start service %s: %v", name, err)
	}
}

func startHealthEndpoint(ctx context.Context, sm *servicemanager.ServiceManager, port int, logger ulogger.Logger) {
	mux := http.NewServeMux()
	healthFunc := func(liveness bool) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			status, details, err := sm.HealthHandler(ctx, liveness)
			if err != nil {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(details))
				return
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(details))
		}
	}
	mux.HandleFunc("/health", healthFunc(false))
	mux.HandleFunc("/health/readiness", healthFunc(false))
	mux.HandleFunc("/health/liveness", healthFunc(true))

	server := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("health endpoint stopped: %v", err)
		}
	}()
	logger.Infof("health check endpoint listening on http://localhost:%d/health", port)
}

// upgradeDecider builds the consensus-version-upgrade gate: unless an
// operator has explicitly opted in via config, any authority version
// bump halts the node rather than silently trusting a new key set.
func upgradeDecider(cfg config, logger ulogger.Logger) trustedauthority.UpgradeDecider {
	return func(ctx context.Context, from, to uint32) (bool, error) {
		logger.Warnf("trusted authority version changing from %d to %d", from, to)
		return cfg.taAutoAcceptUpgrade, nil
	}
}

func loadTrustedAuthoritySet(ctx context.Context, manager *trustedauthority.Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trusted authority set file: %w", err)
	}
	var set model.TrustedAuthoritySet
	if err := json.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("parse trusted authority set file: %w", err)
	}
	return manager.LoadSet(ctx, &set)
}

func initLogger(serviceName string) ulogger.Logger {
	logLevel, _ := gocore.Config().Get("logLevel", "info")
	return ulogger.New(serviceName, logLevel)
}
