package containerd

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

const (
	// DefaultNamespace is the containerd namespace workers run in.
	DefaultNamespace = "ohmsrm"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	stopGracePeriod = 10 * time.Second
)

// Config configures the containerd-backed framework backend.
type Config struct {
	SocketPath string
	Namespace  string
	// Image is the task-executor container image to launch on demand.
	Image string
	// Command, if set, overrides the image's default entrypoint.
	Command []string
	// ResourceManagerAddress is passed to the worker as an environment
	// variable so it knows where to register.
	ResourceManagerAddress string
	Logger                 zerolog.Logger
}

type workerState struct {
	containerID string
	profile     rm.ResourceProfile
	bound       bool
}

// Backend implements rm.FrameworkBackend by launching task executors as
// containerd containers. Grounded on the teacher's ContainerdRuntime
// connect/pull/create/start sequence.
type Backend struct {
	cfg    Config
	client *containerd.Client
	logger zerolog.Logger

	mu      sync.Mutex
	workers map[rm.ResourceID]*workerState
}

// New connects to the containerd socket named by cfg.SocketPath (or
// DefaultSocketPath) and returns a Backend ready to provision workers.
func New(cfg Config) (*Backend, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	client, err := containerd.New(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd at %s: %w", cfg.SocketPath, err)
	}

	return &Backend{
		cfg:     cfg,
		client:  client,
		logger:  cfg.Logger,
		workers: make(map[rm.ResourceID]*workerState),
	}, nil
}

// Close releases the underlying containerd client connection.
func (b *Backend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// StartNewWorker implements rm.FrameworkBackend: pulls the configured image
// and starts a fresh container stamped with a newly minted ResourceID, which
// the launched process is expected to register under.
func (b *Backend) StartNewWorker(ctx context.Context, profile rm.ResourceProfile) ([]rm.ResourceProfile, error) {
	ctx = namespaces.WithNamespace(ctx, b.cfg.Namespace)

	image, err := b.client.GetImage(ctx, b.cfg.Image)
	if err != nil {
		image, err = b.client.Pull(ctx, b.cfg.Image, containerd.WithPullUnpack)
		if err != nil {
			return nil, fmt.Errorf("pull image %s: %w", b.cfg.Image, err)
		}
	}

	resourceID := rm.ResourceID(uuid.NewString())
	containerID := "ohmsrm-worker-" + string(resourceID)

	env := []string{
		"OHMSRM_RESOURCE_ID=" + string(resourceID),
		fmt.Sprintf("OHMSRM_CPU_MILLICORES=%d", profile.CPUMillicores),
		fmt.Sprintf("OHMSRM_MEMORY_BYTES=%d", profile.MemoryBytes),
		fmt.Sprintf("OHMSRM_DISK_BYTES=%d", profile.DiskBytes),
	}
	if b.cfg.ResourceManagerAddress != "" {
		env = append(env, "OHMSRM_RESOURCE_MANAGER_ADDR="+b.cfg.ResourceManagerAddress)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	if len(b.cfg.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(b.cfg.Command...))
	}
	if profile.CPUMillicores > 0 {
		shares := uint64(profile.CPUMillicores)
		quota := int64(profile.CPUMillicores * 100)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if profile.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(profile.MemoryBytes)))
	}

	container, err := b.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("create container for %s: %w", resourceID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("create task for %s: %w", resourceID, err)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("start task for %s: %w", resourceID, err)
	}

	b.mu.Lock()
	b.workers[resourceID] = &workerState{containerID: container.ID(), profile: profile}
	b.mu.Unlock()

	b.logger.Info().Str("resource_id", string(resourceID)).Str("container_id", container.ID()).Msg("started task executor container")
	return []rm.ResourceProfile{profile}, nil
}

// WorkerStarted implements rm.FrameworkBackend: a registering task executor
// is recognized only if its ResourceID matches one this backend itself
// minted in StartNewWorker.
func (b *Backend) WorkerStarted(ctx context.Context, resourceID rm.ResourceID) (rm.WorkerHandle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.workers[resourceID]
	if !ok {
		return nil, false
	}
	state.bound = true
	return state.containerID, true
}

// StopWorker implements rm.FrameworkBackend: sends SIGTERM, waits up to
// stopGracePeriod, escalates to SIGKILL, then removes the container and its
// snapshot. Grounded on ContainerdRuntime.StopContainer/DeleteContainer.
func (b *Backend) StopWorker(ctx context.Context, handle rm.WorkerHandle) error {
	containerID, ok := handle.(string)
	if !ok {
		return fmt.Errorf("unrecognized worker handle %T", handle)
	}
	ctx = namespaces.WithNamespace(ctx, b.cfg.Namespace)

	if err := b.stopContainer(ctx, containerID); err != nil {
		return err
	}

	container, err := b.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container %s: %w", containerID, err)
	}

	b.forgetContainer(containerID)
	return nil
}

func (b *Backend) stopContainer(ctx context.Context, containerID string) error {
	container, err := b.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopGracePeriod)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal task in %s: %w", containerID, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("wait for task in %s: %w", containerID, err)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill task in %s: %w", containerID, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("delete task in %s: %w", containerID, err)
	}
	return nil
}

func (b *Backend) forgetContainer(containerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, state := range b.workers {
		if state.containerID == containerID {
			delete(b.workers, id)
		}
	}
}

// InternalDeregisterApplication implements rm.FrameworkBackend: tears down
// every worker container this backend still knows about.
func (b *Backend) InternalDeregisterApplication(ctx context.Context, status rm.ApplicationStatus, diagnostics string) error {
	b.logger.Info().Int("status", int(status)).Str("diagnostics", diagnostics).Msg("deregistering application, tearing down worker containers")
	return b.stopAllWorkers(ctx)
}

// PrepareLeadershipAsync implements rm.FrameworkBackend: confirms the
// containerd socket is reachable before leadership is confirmed.
func (b *Backend) PrepareLeadershipAsync(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, b.cfg.Namespace)
	if _, err := b.client.Version(ctx); err != nil {
		return fmt.Errorf("containerd not reachable: %w", err)
	}
	return nil
}

// ClearStateAsync implements rm.FrameworkBackend: any worker container this
// backend launched but the registration tables no longer track (because
// they were just wiped on leadership loss) is orphaned and torn down.
func (b *Backend) ClearStateAsync(ctx context.Context) error {
	return b.stopAllWorkers(ctx)
}

func (b *Backend) stopAllWorkers(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, b.cfg.Namespace)

	b.mu.Lock()
	containerIDs := make([]string, 0, len(b.workers))
	for _, state := range b.workers {
		containerIDs = append(containerIDs, state.containerID)
	}
	b.workers = make(map[rm.ResourceID]*workerState)
	b.mu.Unlock()

	var firstErr error
	for _, containerID := range containerIDs {
		if err := b.stopContainer(ctx, containerID); err != nil {
			b.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to stop worker container during teardown")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		container, err := b.client.LoadContainer(ctx, containerID)
		if err != nil {
			continue
		}
		if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			b.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to delete worker container during teardown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
