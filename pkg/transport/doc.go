// Package transport wires rm.Endpoint to gRPC: an inbound Server exposing
// the resource manager's registration/heartbeat/slot RPCs, and outbound
// Connector implementations of rm.JobManagerGateway and
// rm.TaskExecutorGateway dialing back to registered participants.
//
// Grounded on the teacher's pkg/api.Server / pkg/client.Client pairing (a
// hand-registered gRPC service plus a thin client wrapper around a single
// *grpc.ClientConn), generalized from their protoc-generated WarrenAPI
// service to a hand-written grpc.ServiceDesc. The examples' generated proto
// stubs aren't available to regenerate here, so this package registers a gob
// Codec under the "proto" name (overriding grpc-go's default codec
// registration) and writes the ServiceDesc by hand instead of fabricating
// generated message/stub code.
package transport
