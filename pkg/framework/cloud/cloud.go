package cloud

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// ErrProvisioningUnavailable is returned by StartNewWorker: this backend has
// no cloud SDK wired in to act on.
var ErrProvisioningUnavailable = errors.New("cloud provisioning not configured")

// Config configures the cloud backend.
type Config struct {
	Logger zerolog.Logger
}

// Backend is a structural rm.FrameworkBackend implementation for a cloud
// instance provisioner. It tracks whatever ResourceIDs register and drops
// them from that set on StopWorker, without terminating any instance, and
// it declines to start new ones: no provisioning client is wired in.
type Backend struct {
	logger zerolog.Logger

	mu     sync.Mutex
	active map[rm.ResourceID]struct{}
}

// New constructs a cloud Backend.
func New(cfg Config) *Backend {
	return &Backend{logger: cfg.Logger, active: make(map[rm.ResourceID]struct{})}
}

// StartNewWorker implements rm.FrameworkBackend.
func (b *Backend) StartNewWorker(ctx context.Context, profile rm.ResourceProfile) ([]rm.ResourceProfile, error) {
	b.logger.Warn().Msg("cloud backend has no provisioning client configured")
	return nil, ErrProvisioningUnavailable
}

// WorkerStarted implements rm.FrameworkBackend: any task executor that
// reaches the transport layer is accepted, since this backend cannot yet
// distinguish instances it launched from ones it didn't.
func (b *Backend) WorkerStarted(ctx context.Context, resourceID rm.ResourceID) (rm.WorkerHandle, bool) {
	b.mu.Lock()
	b.active[resourceID] = struct{}{}
	b.mu.Unlock()
	return resourceID, true
}

// StopWorker implements rm.FrameworkBackend.
func (b *Backend) StopWorker(ctx context.Context, handle rm.WorkerHandle) error {
	resourceID, ok := handle.(rm.ResourceID)
	if !ok {
		return nil
	}
	b.mu.Lock()
	delete(b.active, resourceID)
	b.mu.Unlock()
	return nil
}

// InternalDeregisterApplication implements rm.FrameworkBackend.
func (b *Backend) InternalDeregisterApplication(ctx context.Context, status rm.ApplicationStatus, diagnostics string) error {
	b.logger.Info().Int("status", int(status)).Str("diagnostics", diagnostics).Msg("application deregistered")
	return nil
}

// PrepareLeadershipAsync implements rm.FrameworkBackend.
func (b *Backend) PrepareLeadershipAsync(ctx context.Context) error { return nil }

// ClearStateAsync implements rm.FrameworkBackend.
func (b *Backend) ClearStateAsync(ctx context.Context) error { return nil }
