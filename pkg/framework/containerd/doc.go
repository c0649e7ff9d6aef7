// Package containerd implements rm.FrameworkBackend by provisioning task
// executors as containerd containers.
//
// Grounded on the teacher's pkg/runtime.ContainerdRuntime: the same
// connect-pull-create-start sequence (namespaces.WithNamespace, client.Pull
// with containerd.WithPullUnpack, oci.SpecOpts for env/CPU/memory, cio.NullIO
// task creation) is reused here to start a worker process instead of a
// user-submitted application container. StartNewWorker stamps the new
// container with the ResourceID it expects the task executor to register
// under; WorkerStarted binds that ResourceID to the running container once
// the registration RPC arrives.
package containerd
