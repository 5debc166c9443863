package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	LandmarkServiceName = "driveguard.v1.LandmarkModel"

	landmarkDetectMethod = "/driveguard.v1.LandmarkModel/Detect"
)

// LandmarkModelServer is implemented by the face-landmark model. Detect takes
// an encoded image and answers {"points": [[x, y], ...]} with normalized
// coordinates, or no points when no face was found.
type LandmarkModelServer interface {
	Detect(ctx context.Context, image *wrapperspb.BytesValue) (*structpb.Struct, error)
}

func landmarkDetectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LandmarkModelServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: landmarkDetectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LandmarkModelServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var LandmarkModelServiceDesc = grpc.ServiceDesc{
	ServiceName: LandmarkServiceName,
	HandlerType: (*LandmarkModelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    landmarkDetectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "driveguard/v1/landmark.proto",
}

func RegisterLandmarkModelServer(s grpc.ServiceRegistrar, srv LandmarkModelServer) {
	s.RegisterService(&LandmarkModelServiceDesc, srv)
}

type LandmarkModelClient struct {
	cc grpc.ClientConnInterface
}

func NewLandmarkModelClient(cc grpc.ClientConnInterface) *LandmarkModelClient {
	return &LandmarkModelClient{cc: cc}
}

func (c *LandmarkModelClient) Detect(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, landmarkDetectMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
