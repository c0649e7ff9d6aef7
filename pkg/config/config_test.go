package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRaftPeer(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		want    Raft
		wantErr bool
	}{
		{
			name:  "well formed",
			entry: "node-2=10.0.0.2:7071",
			want:  Raft{NodeID: "node-2", Addr: "10.0.0.2:7071"},
		},
		{
			name:    "missing equals",
			entry:   "node-2",
			wantErr: true,
		},
		{
			name:  "address containing equals-like characters is fine",
			entry: "node-2=host=foo:7071",
			want:  Raft{NodeID: "node-2", Addr: "host=foo:7071"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRaftPeer(tt.entry)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFileMergesOntoBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodeId: rm-2
backend: containerd
taskManagerHeartbeatTimeout: 30s
`), 0o644))

	base := Default()
	cfg, err := LoadFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, "rm-2", cfg.NodeID)
	assert.Equal(t, BackendContainerd, cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.TaskManagerHeartbeatTimeout)
	// Fields absent from the file keep base's value.
	assert.Equal(t, base.RPCAddr, cfg.RPCAddr)
	assert.Equal(t, base.MetricsAddr, cfg.MetricsAddr)
}

func TestLoadFileMissingPath(t *testing.T) {
	_, err := LoadFile("/no/such/file.yaml", Default())
	assert.Error(t, err)
}

func TestFromFlagsDefaultsWhenNothingSet(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)

	cfg, err := FromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFromFlagsFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodeId: from-file
backend: containerd
`), 0o644))

	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path}))
	require.NoError(t, cmd.ParseFlags([]string{"--node-id", "from-flag"}))

	cfg, err := FromFlags(cmd)
	require.NoError(t, err)

	// Flag wins over file.
	assert.Equal(t, "from-flag", cfg.NodeID)
	// File wins over default, since no flag overrode backend.
	assert.Equal(t, BackendContainerd, cfg.Backend)
}

func TestFromFlagsRaftPeers(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--raft-peer", "node-2=10.0.0.2:7071"}))
	require.NoError(t, cmd.ParseFlags([]string{"--raft-peer", "node-3=10.0.0.3:7071"}))

	cfg, err := FromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, []Raft{
		{NodeID: "node-2", Addr: "10.0.0.2:7071"},
		{NodeID: "node-3", Addr: "10.0.0.3:7071"},
	}, cfg.RaftPeers)
}

func TestFromFlagsRejectsMalformedRaftPeer(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--raft-peer", "not-a-valid-peer"}))

	_, err := FromFlags(cmd)
	assert.Error(t, err)
}
