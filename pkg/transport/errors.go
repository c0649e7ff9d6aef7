package transport

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// toWireError maps rm's error taxonomy onto gRPC status codes so a client on
// the other side of the wire can tell a semantic decline from an
// operational failure without string-matching the message.
func toWireError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case rm.IsDecline(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case rm.IsOperationFailure(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, rm.ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromWireError reconstructs an rm-shaped error from a gRPC status received
// by a client, preserving the decline/operation-failure distinction across
// the wire.
func fromWireError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return rm.NewDecline(st.Message())
	case codes.Unavailable:
		return rm.NewOperationFailure(errors.New(st.Message()))
	default:
		return errors.New(st.Message())
	}
}
