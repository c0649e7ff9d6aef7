package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/ohmsrm/pkg/config"
	"github.com/cuemby/ohmsrm/pkg/events"
	"github.com/cuemby/ohmsrm/pkg/framework/cloud"
	"github.com/cuemby/ohmsrm/pkg/framework/containerd"
	"github.com/cuemby/ohmsrm/pkg/framework/standalone"
	"github.com/cuemby/ohmsrm/pkg/ha"
	"github.com/cuemby/ohmsrm/pkg/jobleader"
	"github.com/cuemby/ohmsrm/pkg/log"
	"github.com/cuemby/ohmsrm/pkg/metrics"
	"github.com/cuemby/ohmsrm/pkg/rm"
	"github.com/cuemby/ohmsrm/pkg/slotmanager"
	"github.com/cuemby/ohmsrm/pkg/transport"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "resourcemanagerd",
	Short: "Resource manager control plane for a distributed data-processing cluster",
	Long: `resourcemanagerd arbitrates slots between job managers and task
executors: it admits registrations, monitors heartbeats, elects a single
fenced leader across a Raft quorum, and drives worker lifecycle through a
pluggable framework backend.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"resourcemanagerd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	config.BindFlags(rootCmd)
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resource manager endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromFlags(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg config.Config) error {
	logger := log.WithNodeID(cfg.NodeID)

	framework, err := newFrameworkBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("construct framework backend: %w", err)
	}

	election := ha.New(ha.Config{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.RaftAddr,
		DataDir:  cfg.DataDir,
		Peers:    raftPeers(cfg.RaftPeers),
		Logger:   logger.With().Str("component", "election").Logger(),
	})
	if cfg.Bootstrap {
		if err := election.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap raft cluster: %w", err)
		}
	} else {
		if err := election.Join(); err != nil {
			return fmt.Errorf("join raft cluster: %w", err)
		}
	}

	jobLeaderSvc := jobleader.New(jobleader.Config{
		Resolver: jobleader.NewSingleMasterResolver(rm.FencingToken(cfg.NodeID)),
		Logger:   logger.With().Str("component", "jobleader").Logger(),
	})

	heartbeatFactory := rm.NewDefaultHeartbeatMonitorFactory(
		cfg.TaskManagerHeartbeatInterval, cfg.TaskManagerHeartbeatTimeout,
		cfg.JobManagerHeartbeatInterval, cfg.JobManagerHeartbeatTimeout,
		logger.With().Str("component", "heartbeat").Logger(),
	)

	broker := events.NewBroker()
	broker.Start()

	endpoint := rm.NewEndpoint(rm.Config{
		ResourceID:       rm.ResourceID(cfg.NodeID),
		SlotManager:      slotmanager.New(logger.With().Str("component", "slotmanager").Logger()),
		Framework:        framework,
		Election:         election,
		JobLeaderID:      jobLeaderSvc,
		HeartbeatFactory: heartbeatFactory,
		Connector:        &transport.Connector{},
		ClusterInfo:      rm.ClusterInformation{BlobServerAddress: cfg.BlobServerAddress},
		Events:           broker,
		Logger:           logger.With().Str("component", "endpoint").Logger(),
	})

	if err := endpoint.Start(); err != nil {
		return fmt.Errorf("start endpoint: %w", err)
	}

	server := transport.NewServer(endpoint, logger.With().Str("component", "transport").Logger())
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.RPCAddr); err != nil {
			serverErrCh <- err
		}
	}()

	collector := metrics.NewCollector(endpoint)
	collector.Start()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "started")
	metrics.RegisterComponent("framework", true, string(cfg.Backend))
	metrics.RegisterComponent("actor", true, "started")
	metrics.RegisterComponent("rpc", true, "listening on "+cfg.RPCAddr)
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().
		Str("rpc_addr", cfg.RPCAddr).
		Str("raft_addr", cfg.RaftAddr).
		Str("metrics_addr", cfg.MetricsAddr).
		Str("backend", string(cfg.Backend)).
		Msg("resourcemanagerd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("transport server error")
	}

	server.Stop()
	collector.Stop()
	broker.Stop()
	if err := endpoint.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping endpoint")
	}
	if closer, ok := framework.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing framework backend")
		}
	}
	return nil
}

func newFrameworkBackend(cfg config.Config, logger zerolog.Logger) (rm.FrameworkBackend, error) {
	switch cfg.Backend {
	case config.BackendContainerd:
		return containerd.New(containerd.Config{
			SocketPath:             cfg.ContainerdSocket,
			Namespace:              cfg.ContainerdNS,
			Image:                  cfg.WorkerImage,
			ResourceManagerAddress: cfg.RPCAddr,
			Logger:                 logger.With().Str("component", "framework.containerd").Logger(),
		})
	case config.BackendCloud:
		return cloud.New(cloud.Config{Logger: logger.With().Str("component", "framework.cloud").Logger()}), nil
	case config.BackendStandalone, "":
		return standalone.New(standalone.Config{Logger: logger.With().Str("component", "framework.standalone").Logger()}), nil
	default:
		return nil, fmt.Errorf("unknown framework backend %q", cfg.Backend)
	}
}

func raftPeers(peers []config.Raft) []ha.Peer {
	out := make([]ha.Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, ha.Peer{NodeID: p.NodeID, Addr: p.Addr})
	}
	return out
}
