package jobleader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// Resolver is the external collaborator consulted to learn which
// JobMasterId currently leads a given job. This package provides two:
// SingleMasterResolver (one static leader for every job) and BrokerResolver
// (leaders set in memory through SetLeader).
type Resolver interface {
	// ResolveLeader blocks until the current leader for job is known, or
	// ctx is done.
	ResolveLeader(ctx context.Context, job rm.JobID) (rm.FencingToken, error)
	// Watch delivers every leader change for job after the initial
	// resolution, until ctx is cancelled.
	Watch(ctx context.Context, job rm.JobID) (<-chan rm.FencingToken, error)
}

// Config configures a Service.
type Config struct {
	Resolver Resolver
	// IdleTimeout is how long after AddJob NotifyJobTimeout fires for a job
	// that is still tracked. The timer is armed once, in AddJob; it is not
	// reset or cancelled by registrations or leader changes. Zero disables
	// idle timeouts.
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

type jobState struct {
	cancel     context.CancelFunc
	current    rm.FencingToken
	hasCurrent bool
	waiters    []chan rm.LeaderIDResult
	timeoutID  string
	timer      *time.Timer
}

// Service implements rm.JobLeaderIDService.
type Service struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	jobs     map[rm.JobID]*jobState
	listener rm.JobLeaderIDListener
}

// New constructs a Service. Call SetListener before any job can deliver
// timeout or lost-leadership callbacks.
func New(cfg Config) *Service {
	return &Service{cfg: cfg, logger: cfg.Logger, jobs: make(map[rm.JobID]*jobState)}
}

// SetListener implements rm.JobLeaderIDService.
func (s *Service) SetListener(listener rm.JobLeaderIDListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// ContainsJob implements rm.JobLeaderIDService.
func (s *Service) ContainsJob(job rm.JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[job]
	return ok
}

// AddJob implements rm.JobLeaderIDService: starts resolving and watching
// job's leader in the background.
func (s *Service) AddJob(job rm.JobID) error {
	s.mu.Lock()
	if _, ok := s.jobs[job]; ok {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	state := &jobState{cancel: cancel}
	s.jobs[job] = state
	s.armIdleTimeoutLocked(job, state)
	s.mu.Unlock()

	go s.track(ctx, job)
	return nil
}

// RemoveJob implements rm.JobLeaderIDService.
func (s *Service) RemoveJob(job rm.JobID) {
	s.mu.Lock()
	state, ok := s.jobs[job]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, job)
	s.mu.Unlock()

	state.cancel()
	if state.timer != nil {
		state.timer.Stop()
	}
}

// GetLeaderID implements rm.JobLeaderIDService: returns a one-shot channel
// resolved with the job's current leader, immediately if already known.
func (s *Service) GetLeaderID(job rm.JobID) (<-chan rm.LeaderIDResult, error) {
	reply := make(chan rm.LeaderIDResult, 1)

	s.mu.Lock()
	state, ok := s.jobs[job]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("job %s is not tracked", job)
	}
	if state.hasCurrent {
		reply <- rm.LeaderIDResult{JobMasterId: state.current}
		s.mu.Unlock()
		return reply, nil
	}
	state.waiters = append(state.waiters, reply)
	s.mu.Unlock()

	return reply, nil
}

// IsValidTimeout implements rm.JobLeaderIDService.
func (s *Service) IsValidTimeout(job rm.JobID, timeoutID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[job]
	return ok && state.timeoutID == timeoutID
}

// Clear implements rm.JobLeaderIDService: cancels every job's watch and
// empties the table (§4.8's clearStateInternal calls this on leadership
// loss).
func (s *Service) Clear() error {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = make(map[rm.JobID]*jobState)
	s.mu.Unlock()

	for _, state := range jobs {
		state.cancel()
		if state.timer != nil {
			state.timer.Stop()
		}
	}
	return nil
}

func (s *Service) armIdleTimeoutLocked(job rm.JobID, state *jobState) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	timeoutID := uuid.NewString()
	state.timeoutID = timeoutID
	state.timer = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.mu.Lock()
		listener := s.listener
		_, stillTracked := s.jobs[job]
		s.mu.Unlock()
		if stillTracked && listener != nil {
			listener.NotifyJobTimeout(job, timeoutID)
		}
	})
}

func (s *Service) track(ctx context.Context, job rm.JobID) {
	leader, err := s.cfg.Resolver.ResolveLeader(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Str("job_id", string(job)).Msg("failed to resolve job leader")
		return
	}
	s.deliver(job, leader)

	updates, err := s.cfg.Resolver.Watch(ctx, job)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", string(job)).Msg("failed to watch job leader")
		return
	}
	for {
		select {
		case next, ok := <-updates:
			if !ok {
				return
			}
			s.deliver(job, next)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) deliver(job rm.JobID, leader rm.FencingToken) {
	s.mu.Lock()
	state, ok := s.jobs[job]
	if !ok {
		s.mu.Unlock()
		return
	}

	old := state.current
	hadCurrent := state.hasCurrent
	state.current = leader
	state.hasCurrent = true
	waiters := state.waiters
	state.waiters = nil
	listener := s.listener
	s.mu.Unlock()

	for _, w := range waiters {
		w <- rm.LeaderIDResult{JobMasterId: leader}
	}

	if hadCurrent && old != leader && listener != nil {
		listener.JobLeaderLostLeadership(job, old)
	}
}
