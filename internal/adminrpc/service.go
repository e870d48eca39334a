// Package adminrpc is the internal gRPC control plane operators use to
// check health, force an immediate cash-out drain, and inspect a
// subscriber's key-lifecycle state, grounded on rpcserver.go's
// Start/Stop-guarded RPC service wrapping a shared *server.
package adminrpc

import (
	"context"

	"google.golang.org/grpc"
)

// AdminServer is the set of RPCs exposed on the admin control plane.
type AdminServer interface {
	Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error)
	TriggerDrain(ctx context.Context, req *TriggerDrainRequest) (*TriggerDrainResponse, error)
	DescribeSubscriber(ctx context.Context, req *DescribeSubscriberRequest) (*DescribeSubscriberResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "sandboxbank.ebicsd.Admin",
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Health",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(HealthRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AdminServer).Health(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sandboxbank.ebicsd.Admin/Health"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminServer).Health(ctx, req.(*HealthRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "TriggerDrain",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(TriggerDrainRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AdminServer).TriggerDrain(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sandboxbank.ebicsd.Admin/TriggerDrain"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminServer).TriggerDrain(ctx, req.(*TriggerDrainRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "DescribeSubscriber",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(DescribeSubscriberRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AdminServer).DescribeSubscriber(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sandboxbank.ebicsd.Admin/DescribeSubscriber"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminServer).DescribeSubscriber(ctx, req.(*DescribeSubscriberRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "internal/adminrpc/service.go",
}

// RegisterAdminServer registers srv's RPCs on s.
func RegisterAdminServer(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&serviceDesc, srv)
}

// AdminClient is the client-side counterpart of AdminServer, used by
// cmd/ebicsctl.
type AdminClient interface {
	Health(ctx context.Context, req *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
	TriggerDrain(ctx context.Context, req *TriggerDrainRequest, opts ...grpc.CallOption) (*TriggerDrainResponse, error)
	DescribeSubscriber(ctx context.Context, req *DescribeSubscriberRequest, opts ...grpc.CallOption) (*DescribeSubscriberResponse, error)
}

type adminClient struct {
	cc *grpc.ClientConn
}

// NewAdminClient wraps a dialed connection as an AdminClient.
func NewAdminClient(cc *grpc.ClientConn) AdminClient {
	return &adminClient{cc: cc}
}

func (c *adminClient) Health(ctx context.Context, req *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.cc.Invoke(ctx, "/sandboxbank.ebicsd.Admin/Health", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) TriggerDrain(ctx context.Context, req *TriggerDrainRequest, opts ...grpc.CallOption) (*TriggerDrainResponse, error) {
	out := new(TriggerDrainResponse)
	if err := c.cc.Invoke(ctx, "/sandboxbank.ebicsd.Admin/TriggerDrain", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) DescribeSubscriber(ctx context.Context, req *DescribeSubscriberRequest, opts ...grpc.CallOption) (*DescribeSubscriberResponse, error) {
	out := new(DescribeSubscriberResponse)
	if err := c.cc.Invoke(ctx, "/sandboxbank.ebicsd.Admin/DescribeSubscriber", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
