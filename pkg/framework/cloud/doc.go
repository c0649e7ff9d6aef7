// Package cloud is a placeholder rm.FrameworkBackend for provisioning task
// executors as cloud instances (the third FrameworkBackend variant the spec
// names alongside standalone and containerd). None of the example repos in
// this corpus vendor a cloud provider SDK to ground a real implementation
// against, so this backend intentionally declines provisioning rather than
// fabricate a dependency; see DESIGN.md for the reasoning.
package cloud
