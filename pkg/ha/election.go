package ha

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// Peer names one other voter in the consensus group, for Config.Peers.
type Peer struct {
	NodeID string
	Addr   string
}

// Config configures a raft-backed LeaderElection.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Peers are added as starting voters, alongside this node, when
	// Bootstrap is called; Join ignores them, and the cluster then grows via
	// AddVoter called by an operator or a sibling process.
	Peers []Peer

	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	LeaderLeaseTimeout time.Duration
	CommitTimeout      time.Duration

	Logger zerolog.Logger
}

// Election is a rm.LeaderElection backed by a Hashicorp Raft consensus
// group. Grounded on pkg/manager.Manager's Bootstrap/Join wiring, but
// narrowed: the FSM here carries only a leadership epoch, never cluster
// state (see doc.go).
type Election struct {
	cfg    Config
	logger zerolog.Logger

	raft *raft.Raft
	fsm  *epochFSM

	mu           sync.Mutex
	listener     rm.LeadershipListener
	sessionID    string
	sessionSeq   uint64
	watchDone    chan struct{}
	stopOnce     sync.Once
	confirmedSeq atomic.Uint64
}

// New constructs an Election. Call Bootstrap or Join once before Start.
func New(cfg Config) *Election {
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 500 * time.Millisecond
	}
	if cfg.ElectionTimeout == 0 {
		cfg.ElectionTimeout = 500 * time.Millisecond
	}
	if cfg.LeaderLeaseTimeout == 0 {
		cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	}
	if cfg.CommitTimeout == 0 {
		cfg.CommitTimeout = 50 * time.Millisecond
	}
	return &Election{cfg: cfg, logger: cfg.Logger, fsm: newEpochFSM()}
}

// Bootstrap stands up a fresh Raft cluster, optionally with the peers named
// in cfg.Peers as starting voters.
func (e *Election) Bootstrap() error {
	r, err := e.newRaft()
	if err != nil {
		return err
	}
	e.raft = r

	servers := []raft.Server{{ID: raft.ServerID(e.cfg.NodeID), Address: raft.ServerAddress(e.cfg.BindAddr)}}
	for _, p := range e.cfg.Peers {
		if p.NodeID == e.cfg.NodeID {
			continue
		}
		servers = append(servers, raft.Server{ID: raft.ServerID(p.NodeID), Address: raft.ServerAddress(p.Addr)})
	}

	future := r.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap raft cluster: %w", err)
	}
	return nil
}

// Join starts this node's Raft instance without bootstrapping; the caller
// is expected to have already been added as a voter by the current leader
// (e.g. via AddVoter called against the leader's Election).
func (e *Election) Join() error {
	r, err := e.newRaft()
	if err != nil {
		return err
	}
	e.raft = r
	return nil
}

// AddVoter adds another node to the consensus group. Only meaningful when
// this Election currently holds Raft leadership.
func (e *Election) AddVoter(nodeID, addr string) error {
	if e.raft == nil {
		return fmt.Errorf("raft not started")
	}
	future := e.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

func (e *Election) newRaft() (*raft.Raft, error) {
	if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(e.cfg.NodeID)
	config.HeartbeatTimeout = e.cfg.HeartbeatTimeout
	config.ElectionTimeout = e.cfg.ElectionTimeout
	config.LeaderLeaseTimeout = e.cfg.LeaderLeaseTimeout
	config.CommitTimeout = e.cfg.CommitTimeout

	addr, err := net.ResolveTCPAddr("tcp", e.cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(e.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(e.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(e.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(e.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	return raft.NewRaft(config, e.fsm, logStore, stableStore, snapshotStore, transport)
}

// Start implements rm.LeaderElection: begins watching Raft's leadership
// channel and delivers Grant/Revoke transitions to listener.
func (e *Election) Start(listener rm.LeadershipListener) error {
	if e.raft == nil {
		return fmt.Errorf("raft not started: call Bootstrap or Join first")
	}

	e.mu.Lock()
	e.listener = listener
	e.watchDone = make(chan struct{})
	done := e.watchDone
	e.mu.Unlock()

	go e.watchLeadership(done)
	return nil
}

func (e *Election) watchLeadership(done chan struct{}) {
	ch := e.raft.LeaderCh()
	for {
		select {
		case isLeader, ok := <-ch:
			if !ok {
				return
			}
			if isLeader {
				e.onBecameLeader()
			} else {
				e.onLostLeadership()
			}
		case <-done:
			return
		}
	}
}

func (e *Election) onBecameLeader() {
	e.mu.Lock()
	e.sessionSeq++
	sessionID := fmt.Sprintf("%s-%d", e.cfg.NodeID, e.sessionSeq)
	e.sessionID = sessionID
	listener := e.listener
	e.mu.Unlock()

	e.logger.Info().Str("session", sessionID).Msg("raft leadership acquired")
	if listener != nil {
		listener.GrantLeadership(sessionID)
	}
}

func (e *Election) onLostLeadership() {
	e.mu.Lock()
	sessionID := e.sessionID
	e.sessionID = ""
	listener := e.listener
	e.mu.Unlock()

	e.logger.Info().Str("session", sessionID).Msg("raft leadership lost")
	if listener != nil {
		listener.RevokeLeadership()
	}
}

// Stop shuts down the leadership watch goroutine and the Raft instance.
func (e *Election) Stop() error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		done := e.watchDone
		e.mu.Unlock()
		if done != nil {
			close(done)
		}
	})
	if e.raft == nil {
		return nil
	}
	return e.raft.Shutdown().Error()
}

// ConfirmLeadership implements rm.LeaderElection: appends an epoch marker
// to the Raft log as proof this node is still leader for sessionID, then
// logs the confirmed fencing token. The token itself is not stored.
func (e *Election) ConfirmLeadership(sessionID string, token rm.FencingToken) error {
	if !e.HasLeadership(sessionID) {
		return fmt.Errorf("session %s is no longer current", sessionID)
	}

	e.confirmedSeq.Add(1)
	data, err := json.Marshal(epochCommand{Epoch: e.confirmedSeq.Load()})
	if err != nil {
		return err
	}
	future := e.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply leadership epoch marker: %w", err)
	}

	e.logger.Info().Str("session", sessionID).Str("fencing_token", string(token)).Msg("leadership confirmed")
	return nil
}

// HasLeadership implements rm.LeaderElection.
func (e *Election) HasLeadership(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID != "" && e.sessionID == sessionID
}
