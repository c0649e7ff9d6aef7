package transport

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/ohmsrm/pkg/rm"
)

// Connector implements rm.GatewayConnector by dialing back to the address a
// registering job manager or task executor gave at registration time.
// Grounded on the teacher's pkg/client.Client dial setup, generalized from a
// single manager-facing client to one that dials arbitrary peer addresses on
// demand.
type Connector struct {
	// DialOptions, when non-empty, are the options passed to every outbound
	// grpc.NewClient call (e.g. TLS transport credentials) in place of the
	// default. The default is an insecure transport, matching
	// the pattern the rest of this package uses for a hand-rolled wire
	// format that doesn't use protoc-generated mTLS plumbing.
	DialOptions []grpc.DialOption
}

func (c *Connector) dialOptions() []grpc.DialOption {
	if len(c.DialOptions) > 0 {
		return c.DialOptions
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

// ConnectJobManager implements rm.GatewayConnector.
func (c *Connector) ConnectJobManager(ctx context.Context, resourceID rm.ResourceID, address string, claimed rm.FencingToken) (rm.JobManagerGateway, error) {
	conn, err := grpc.NewClient(address, c.dialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("dial job manager at %s: %w", address, err)
	}
	return &jobManagerGateway{conn: conn}, nil
}

// ConnectTaskExecutor implements rm.GatewayConnector.
func (c *Connector) ConnectTaskExecutor(ctx context.Context, resourceID rm.ResourceID, address string) (rm.TaskExecutorGateway, error) {
	conn, err := grpc.NewClient(address, c.dialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("dial task executor at %s: %w", address, err)
	}
	return &taskExecutorGateway{conn: conn}, nil
}

// jobManagerGateway implements rm.JobManagerGateway over a gRPC connection
// to a job manager process. The job manager's own RPC surface is outside
// this repository's scope (§1 Non-goal: the job manager/task executor
// processes themselves); only the method paths and wire types are defined
// here, as the contract this endpoint calls against.
type jobManagerGateway struct {
	conn *grpc.ClientConn
}

const jobManagerServiceName = "ohmsrm.transport.JobManagerCallbackService"

func (g *jobManagerGateway) HeartbeatFromResourceManager(ctx context.Context) error {
	err := g.conn.Invoke(ctx, "/"+jobManagerServiceName+"/HeartbeatFromResourceManager", &Empty{}, &Empty{})
	return fromWireError(err)
}

func (g *jobManagerGateway) DisconnectResourceManager(ctx context.Context, token rm.FencingToken, cause error) error {
	req := &DisconnectResourceManagerFromJobManagerRequest{Token: token, Cause: causeString(cause)}
	err := g.conn.Invoke(ctx, "/"+jobManagerServiceName+"/DisconnectResourceManager", req, &Empty{})
	return fromWireError(err)
}

func (g *jobManagerGateway) NotifyAllocationFailure(ctx context.Context, alloc rm.AllocationID, cause error) error {
	req := &NotifyAllocationFailureRequest{AllocationID: alloc, Cause: causeString(cause)}
	err := g.conn.Invoke(ctx, "/"+jobManagerServiceName+"/NotifyAllocationFailure", req, &Empty{})
	return fromWireError(err)
}

// taskExecutorGateway implements rm.TaskExecutorGateway over a gRPC
// connection to a task executor process.
type taskExecutorGateway struct {
	conn *grpc.ClientConn
}

const taskExecutorServiceName = "ohmsrm.transport.TaskExecutorCallbackService"

func (g *taskExecutorGateway) HeartbeatFromResourceManager(ctx context.Context) error {
	err := g.conn.Invoke(ctx, "/"+taskExecutorServiceName+"/HeartbeatFromResourceManager", &Empty{}, &Empty{})
	return fromWireError(err)
}

func (g *taskExecutorGateway) DisconnectResourceManager(ctx context.Context, cause error) error {
	req := &DisconnectResourceManagerRequest{Cause: causeString(cause)}
	err := g.conn.Invoke(ctx, "/"+taskExecutorServiceName+"/DisconnectResourceManager", req, &Empty{})
	return fromWireError(err)
}

func (g *taskExecutorGateway) RequestMetricQueryServiceAddress(ctx context.Context, timeout time.Duration) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp := &RequestMetricQueryServiceAddressResponse{}
	err := g.conn.Invoke(ctx, "/"+taskExecutorServiceName+"/RequestMetricQueryServiceAddress", &RequestMetricQueryServiceAddressRequest{}, resp)
	if err != nil {
		return "", false, fromWireError(err)
	}
	return resp.Address, resp.OK, nil
}

func (g *taskExecutorGateway) RequestFileUpload(ctx context.Context, fileType rm.FileType) error {
	req := &RequestFileUploadRequest{FileType: fileType}
	err := g.conn.Invoke(ctx, "/"+taskExecutorServiceName+"/RequestFileUpload", req, &Empty{})
	return fromWireError(err)
}

func causeString(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
