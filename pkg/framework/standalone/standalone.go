package standalone

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// Config configures the standalone backend.
type Config struct {
	// KnownResourceIDs, if non-empty, restricts WorkerStarted to accepting
	// only these ResourceIDs. Empty means accept any ResourceID; this
	// backend checks no credentials.
	KnownResourceIDs []rm.ResourceID
	Logger           zerolog.Logger
}

// Backend implements rm.FrameworkBackend for a pre-started, externally
// managed pool of task executors. It never provisions workers itself; it
// only recognizes and tracks the ones that show up.
type Backend struct {
	logger zerolog.Logger

	mu      sync.Mutex
	allowed map[rm.ResourceID]struct{}
	active  map[rm.ResourceID]struct{}
}

// New constructs a standalone Backend.
func New(cfg Config) *Backend {
	b := &Backend{
		logger: cfg.Logger,
		active: make(map[rm.ResourceID]struct{}),
	}
	if len(cfg.KnownResourceIDs) > 0 {
		b.allowed = make(map[rm.ResourceID]struct{}, len(cfg.KnownResourceIDs))
		for _, id := range cfg.KnownResourceIDs {
			b.allowed[id] = struct{}{}
		}
	}
	return b
}

// StartNewWorker implements rm.FrameworkBackend. The standalone backend
// cannot provision capacity; it declines every request so the caller falls
// back to waiting for operator-added capacity.
func (b *Backend) StartNewWorker(ctx context.Context, profile rm.ResourceProfile) ([]rm.ResourceProfile, error) {
	b.logger.Debug().Msg("standalone backend cannot auto-provision workers; waiting for operator-managed capacity")
	return nil, nil
}

// WorkerStarted implements rm.FrameworkBackend: any ResourceID is admitted
// unless an allow-list was configured, in which case only listed IDs are.
func (b *Backend) WorkerStarted(ctx context.Context, resourceID rm.ResourceID) (rm.WorkerHandle, bool) {
	if b.allowed != nil {
		if _, ok := b.allowed[resourceID]; !ok {
			return nil, false
		}
	}
	b.mu.Lock()
	b.active[resourceID] = struct{}{}
	b.mu.Unlock()
	return resourceID, true
}

// StopWorker implements rm.FrameworkBackend. The standalone backend has no
// process to terminate; the operator owns the task executor's lifecycle.
func (b *Backend) StopWorker(ctx context.Context, handle rm.WorkerHandle) error {
	resourceID, ok := handle.(rm.ResourceID)
	if !ok {
		return nil
	}
	b.mu.Lock()
	delete(b.active, resourceID)
	b.mu.Unlock()
	b.logger.Info().Str("resource_id", string(resourceID)).Msg("task executor removed from active set; operator is responsible for terminating its process")
	return nil
}

// InternalDeregisterApplication implements rm.FrameworkBackend: there is no
// cluster-wide teardown hook for an externally managed pool.
func (b *Backend) InternalDeregisterApplication(ctx context.Context, status rm.ApplicationStatus, diagnostics string) error {
	b.logger.Info().Int("status", int(status)).Str("diagnostics", diagnostics).Msg("application deregistered")
	return nil
}

// PrepareLeadershipAsync implements rm.FrameworkBackend. Nothing to prepare.
func (b *Backend) PrepareLeadershipAsync(ctx context.Context) error {
	return nil
}

// ClearStateAsync implements rm.FrameworkBackend. Nothing to clear: the
// operator-managed pool survives a leadership transition untouched.
func (b *Backend) ClearStateAsync(ctx context.Context) error {
	return nil
}
