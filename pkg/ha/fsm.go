package ha

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// epochFSM is the smallest possible Raft FSM: it tracks nothing but the
// current leadership epoch counter, which is bumped once per confirmed
// leadership transition purely so the Raft log is never empty and
// snapshots have something well-defined to persist. No cluster state flows
// through it.
type epochFSM struct {
	mu    sync.Mutex
	epoch uint64
}

func newEpochFSM() *epochFSM {
	return &epochFSM{}
}

// epochCommand is the sole command ever appended to the Raft log.
type epochCommand struct {
	Epoch uint64 `json:"epoch"`
}

func (f *epochFSM) Apply(entry *raft.Log) interface{} {
	var cmd epochCommand
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd.Epoch > f.epoch {
		f.epoch = cmd.Epoch
	}
	return nil
}

func (f *epochFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &epochSnapshot{epoch: f.epoch}, nil
}

func (f *epochFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var payload struct {
		Epoch uint64 `json:"epoch"`
	}
	if err := json.NewDecoder(rc).Decode(&payload); err != nil {
		return err
	}
	f.mu.Lock()
	f.epoch = payload.Epoch
	f.mu.Unlock()
	return nil
}

type epochSnapshot struct {
	epoch uint64
}

func (s *epochSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(struct {
			Epoch uint64 `json:"epoch"`
		}{Epoch: s.epoch}); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *epochSnapshot) Release() {}
