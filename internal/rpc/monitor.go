// Package rpc holds the gRPC service descriptors of the monitor service and
// of the external landmark model. Messages are well-known protobuf types, so
// no generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	MonitorServiceName = "driveguard.v1.Monitor"

	monitorWatchMethod  = "/driveguard.v1.Monitor/Watch"
	monitorHealthMethod = "/driveguard.v1.Monitor/Health"
)

// MonitorServer streams frames in and detection events out.
type MonitorServer interface {
	Watch(stream MonitorWatchServer) error
	Health(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

type MonitorWatchServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type monitorWatchServer struct {
	grpc.ServerStream
}

func (x *monitorWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *monitorWatchServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func monitorWatchHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(MonitorServer).Watch(&monitorWatchServer{stream})
}

func monitorHealthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MonitorServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: monitorHealthMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MonitorServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var MonitorServiceDesc = grpc.ServiceDesc{
	ServiceName: MonitorServiceName,
	HandlerType: (*MonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Health",
			Handler:    monitorHealthHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       monitorWatchHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "driveguard/v1/monitor.proto",
}

func RegisterMonitorServer(s grpc.ServiceRegistrar, srv MonitorServer) {
	s.RegisterService(&MonitorServiceDesc, srv)
}

type MonitorClient struct {
	cc grpc.ClientConnInterface
}

func NewMonitorClient(cc grpc.ClientConnInterface) *MonitorClient {
	return &MonitorClient{cc: cc}
}

func (c *MonitorClient) Health(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, monitorHealthMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type MonitorWatchClient interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type monitorWatchClient struct {
	grpc.ClientStream
}

func (x *monitorWatchClient) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

func (x *monitorWatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Watch opens the frame stream. The trip is selected with the x-trip-id and
// x-driver-id metadata keys.
func (c *MonitorClient) Watch(ctx context.Context, opts ...grpc.CallOption) (MonitorWatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &MonitorServiceDesc.Streams[0], monitorWatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &monitorWatchClient{stream}, nil
}
