// Package config assembles process configuration for resourcemanagerd from
// command-line flags and an optional YAML file, the way cmd/warren's root
// command assembles its own persistent flags plus an "apply" manifest file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Backend names which rm.FrameworkBackend implementation a process wires up.
type Backend string

const (
	BackendStandalone Backend = "standalone"
	BackendContainerd Backend = "containerd"
	BackendCloud      Backend = "cloud"
)

// Raft names one other voter in the consensus group.
type Raft struct {
	NodeID string `yaml:"nodeId"`
	Addr   string `yaml:"addr"`
}

// Config bundles everything resourcemanagerd needs to start: leader
// election, transport, the framework backend, and heartbeat tuning.
// Populated first from a YAML file (if --config points at one), then
// overridden by any flag the operator set explicitly on the command line.
type Config struct {
	NodeID    string `yaml:"nodeId"`
	RPCAddr   string `yaml:"rpcAddr"`
	RaftAddr  string `yaml:"raftAddr"`
	DataDir   string `yaml:"dataDir"`
	RaftPeers []Raft `yaml:"raftPeers"`
	Bootstrap bool   `yaml:"bootstrap"`

	Backend          Backend `yaml:"backend"`
	ContainerdSocket string  `yaml:"containerdSocket"`
	ContainerdNS     string  `yaml:"containerdNamespace"`
	WorkerImage      string  `yaml:"workerImage"`

	BlobServerAddress string `yaml:"blobServerAddress"`

	TaskManagerHeartbeatInterval time.Duration `yaml:"taskManagerHeartbeatInterval"`
	TaskManagerHeartbeatTimeout  time.Duration `yaml:"taskManagerHeartbeatTimeout"`
	JobManagerHeartbeatInterval  time.Duration `yaml:"jobManagerHeartbeatInterval"`
	JobManagerHeartbeatTimeout   time.Duration `yaml:"jobManagerHeartbeatTimeout"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJson"`

	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns a Config with the same baseline values the teacher's
// cluster-init command prints when an operator supplies nothing else.
func Default() Config {
	return Config{
		NodeID:                       "resourcemanager-1",
		RPCAddr:                      "0.0.0.0:7070",
		RaftAddr:                     "0.0.0.0:7071",
		DataDir:                      "/var/lib/resourcemanagerd",
		Backend:                      BackendStandalone,
		ContainerdNS:                 "resourcemanagerd",
		TaskManagerHeartbeatInterval: 10 * time.Second,
		TaskManagerHeartbeatTimeout:  50 * time.Second,
		JobManagerHeartbeatInterval:  10 * time.Second,
		JobManagerHeartbeatTimeout:   50 * time.Second,
		LogLevel:                     "info",
		MetricsAddr:                  "127.0.0.1:9090",
	}
}

// LoadFile reads and merges a YAML config file onto base, returning the
// merged result. Fields absent from the file keep base's value.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// BindFlags registers every Config field as a persistent flag on cmd,
// mirroring the flat Flags().String/Bool/Int style the teacher's root
// command uses rather than introducing a separate flag-binding library.
func BindFlags(cmd *cobra.Command) {
	d := Default()
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("node-id", d.NodeID, "Unique node ID")
	flags.String("rpc-addr", d.RPCAddr, "Address the resource manager gRPC service listens on")
	flags.String("raft-addr", d.RaftAddr, "Address the Raft consensus transport listens on")
	flags.String("data-dir", d.DataDir, "Directory for Raft log and snapshot storage")
	flags.Bool("bootstrap", false, "Bootstrap a new Raft cluster with this node as the first voter")
	flags.StringSlice("raft-peer", nil, "Other Raft voters as nodeID=addr (repeatable)")

	flags.String("backend", string(d.Backend), "Framework backend: standalone, containerd, or cloud")
	flags.String("containerd-socket", "", "containerd socket path (defaults to /run/containerd/containerd.sock if not specified)")
	flags.String("containerd-namespace", d.ContainerdNS, "containerd namespace for provisioned workers")
	flags.String("worker-image", "", "Container image to launch for provisioned task executors")

	flags.String("blob-server-addr", "", "Blob server address advertised to registering participants")

	flags.Duration("task-heartbeat-interval", d.TaskManagerHeartbeatInterval, "Task executor heartbeat ping interval")
	flags.Duration("task-heartbeat-timeout", d.TaskManagerHeartbeatTimeout, "Task executor heartbeat timeout")
	flags.Duration("job-heartbeat-interval", d.JobManagerHeartbeatInterval, "Job manager heartbeat ping interval")
	flags.Duration("job-heartbeat-timeout", d.JobManagerHeartbeatTimeout, "Job manager heartbeat timeout")

	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")

	flags.String("metrics-addr", d.MetricsAddr, "Address the Prometheus metrics and health endpoints listen on")
}

// FromFlags resolves a Config by first loading --config (if set), then
// layering every flag the operator actually set (cmd.Flags().Changed) on
// top, so flags always win over the file and the file always wins over
// defaults.
func FromFlags(cmd *cobra.Command) (Config, error) {
	cfg := Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := LoadFile(path, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if flags.Changed(name) {
			*dst, _ = flags.GetDuration(name)
		}
	}

	setString("node-id", &cfg.NodeID)
	setString("rpc-addr", &cfg.RPCAddr)
	setString("raft-addr", &cfg.RaftAddr)
	setString("data-dir", &cfg.DataDir)
	setBool("bootstrap", &cfg.Bootstrap)
	if flags.Changed("raft-peer") {
		raw, _ := flags.GetStringSlice("raft-peer")
		cfg.RaftPeers = nil
		for _, entry := range raw {
			peer, err := parseRaftPeer(entry)
			if err != nil {
				return cfg, err
			}
			cfg.RaftPeers = append(cfg.RaftPeers, peer)
		}
	}

	if flags.Changed("backend") {
		backend, _ := flags.GetString("backend")
		cfg.Backend = Backend(backend)
	}
	setString("containerd-socket", &cfg.ContainerdSocket)
	setString("containerd-namespace", &cfg.ContainerdNS)
	setString("worker-image", &cfg.WorkerImage)

	setString("blob-server-addr", &cfg.BlobServerAddress)

	setDuration("task-heartbeat-interval", &cfg.TaskManagerHeartbeatInterval)
	setDuration("task-heartbeat-timeout", &cfg.TaskManagerHeartbeatTimeout)
	setDuration("job-heartbeat-interval", &cfg.JobManagerHeartbeatInterval)
	setDuration("job-heartbeat-timeout", &cfg.JobManagerHeartbeatTimeout)

	setString("log-level", &cfg.LogLevel)
	setBool("log-json", &cfg.LogJSON)

	setString("metrics-addr", &cfg.MetricsAddr)

	return cfg, nil
}

func parseRaftPeer(entry string) (Raft, error) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return Raft{NodeID: entry[:i], Addr: entry[i+1:]}, nil
		}
	}
	return Raft{}, fmt.Errorf("invalid raft peer %q, expected nodeID=addr", entry)
}
