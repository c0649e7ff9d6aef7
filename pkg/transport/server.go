package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

const serviceName = "ohmsrm.transport.ResourceManagerService"

// Server is the inbound gRPC frontend for a *rm.Endpoint. Grounded on the
// teacher's pkg/api.Server: a thin wrapper owning the listener and the
// grpc.Server, with every RPC handler just translating wire types and
// delegating straight into the domain object.
type Server struct {
	endpoint *rm.Endpoint
	logger   zerolog.Logger
	grpc     *grpc.Server
}

// NewServer wraps endpoint with a gRPC frontend. opts are forwarded to
// grpc.NewServer (TLS credentials, interceptors, etc. are the caller's
// concern, mirroring the teacher leaving mTLS setup to its own NewServer).
func NewServer(endpoint *rm.Endpoint, logger zerolog.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{endpoint: endpoint, logger: logger, grpc: grpc.NewServer(opts...)}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on addr and serves until the listener or server is stopped.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info().Str("addr", addr).Msg("resource manager gRPC server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully drains in-flight RPCs before returning.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) registerJobManager(ctx context.Context, req *rm.RegisterJobManagerRequest) (*rm.RegisterJobManagerResponse, error) {
	resp, err := s.endpoint.RegisterJobManager(ctx, *req)
	return resp, toWireError(err)
}

func (s *Server) registerTaskExecutor(ctx context.Context, req *rm.RegisterTaskExecutorRequest) (*rm.RegisterTaskExecutorResponse, error) {
	resp, err := s.endpoint.RegisterTaskExecutor(ctx, *req)
	return resp, toWireError(err)
}

func (s *Server) sendSlotReport(ctx context.Context, req *SendSlotReportRequest) (*Empty, error) {
	err := s.endpoint.SendSlotReport(req.ResourceManagerId, req.ResourceID, req.InstanceID, req.Report)
	return &Empty{}, toWireError(err)
}

func (s *Server) disconnectTaskManager(ctx context.Context, req *DisconnectTaskManagerRequest) (*Empty, error) {
	s.endpoint.DisconnectTaskManager(req.ResourceManagerId, req.ResourceID, errors.New(req.Cause))
	return &Empty{}, nil
}

func (s *Server) disconnectJobManager(ctx context.Context, req *DisconnectJobManagerRequest) (*Empty, error) {
	s.endpoint.DisconnectJobManager(req.ResourceManagerId, req.JobID, errors.New(req.Cause))
	return &Empty{}, nil
}

func (s *Server) heartbeatFromTaskManager(ctx context.Context, req *HeartbeatFromTaskManagerRequest) (*Empty, error) {
	s.endpoint.HeartbeatFromTaskManager(req.ResourceManagerId, req.ResourceID, req.Report)
	return &Empty{}, nil
}

func (s *Server) heartbeatFromJobManager(ctx context.Context, req *HeartbeatFromJobManagerRequest) (*Empty, error) {
	s.endpoint.HeartbeatFromJobManager(req.ResourceManagerId, req.ResourceID)
	return &Empty{}, nil
}

func (s *Server) requestSlot(ctx context.Context, req *RequestSlotRequest) (*Empty, error) {
	err := s.endpoint.RequestSlotFromResourceManager(req.ResourceManagerId, req.JobMasterId, req.Req)
	return &Empty{}, toWireError(err)
}

func (s *Server) cancelSlotRequest(ctx context.Context, req *CancelSlotRequestRequest) (*Empty, error) {
	s.endpoint.CancelSlotRequest(req.ResourceManagerId, req.AllocationID)
	return &Empty{}, nil
}

func (s *Server) notifySlotAvailable(ctx context.Context, req *NotifySlotAvailableRequest) (*Empty, error) {
	err := s.endpoint.NotifySlotAvailable(req.ResourceManagerId, req.Instance, req.Slot, req.Alloc)
	return &Empty{}, toWireError(err)
}

func (s *Server) requestTaskManagerInfo(ctx context.Context, req *Empty) (*TaskManagerInfoResponse, error) {
	return &TaskManagerInfoResponse{TaskManagers: s.endpoint.RequestTaskManagerInfo()}, nil
}

func (s *Server) requestResourceOverview(ctx context.Context, req *Empty) (*ResourceOverviewResponse, error) {
	return &ResourceOverviewResponse{Overview: s.endpoint.RequestResourceOverview()}, nil
}

func (s *Server) deregisterApplication(ctx context.Context, req *DeregisterApplicationRequest) (*Empty, error) {
	err := s.endpoint.DeregisterApplication(ctx, req.Status, req.Diagnostics)
	return &Empty{}, toWireError(err)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// ServiceDesc: every RPC this server exposes, registered directly against
// the gobCodec rather than generated message/unmarshal code.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("RegisterJobManager", (*Server).registerJobManager),
		unaryMethod("RegisterTaskExecutor", (*Server).registerTaskExecutor),
		unaryMethod("SendSlotReport", (*Server).sendSlotReport),
		unaryMethod("DisconnectTaskManager", (*Server).disconnectTaskManager),
		unaryMethod("DisconnectJobManager", (*Server).disconnectJobManager),
		unaryMethod("HeartbeatFromTaskManager", (*Server).heartbeatFromTaskManager),
		unaryMethod("HeartbeatFromJobManager", (*Server).heartbeatFromJobManager),
		unaryMethod("RequestSlotFromResourceManager", (*Server).requestSlot),
		unaryMethod("CancelSlotRequest", (*Server).cancelSlotRequest),
		unaryMethod("NotifySlotAvailable", (*Server).notifySlotAvailable),
		unaryMethod("RequestTaskManagerInfo", (*Server).requestTaskManagerInfo),
		unaryMethod("RequestResourceOverview", (*Server).requestResourceOverview),
		unaryMethod("DeregisterApplication", (*Server).deregisterApplication),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ohmsrm/resourcemanager.proto",
}

// unaryMethod builds a grpc.MethodDesc from a typed (*Server) handler
// method, decoding the request with the registered codec and applying any
// configured unary interceptor. This is the hand-written stand-in for what
// protoc-gen-go-grpc would otherwise generate per RPC.
func unaryMethod[Req any, Resp any](name string, handler func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return handler(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			wrapper := func(ctx context.Context, req interface{}) (interface{}, error) {
				return handler(s, ctx, req.(*Req))
			}
			return interceptor(ctx, req, info, wrapper)
		},
	}
}
