package proxy

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eventgateway.v1.PublishProxy"

const publishMethod = "/" + ServiceName + "/Publish"

// PublishProxyServer is the server API for the PublishProxy service.
//
// Requests and responses are google.protobuf.Struct messages:
//
//	request:  {"topic": string, "key": string (optional), "payload": object}
//	response: {"eventId": string, "topic": string, "partition": number, "offset": number}
type PublishProxyServer interface {
	Publish(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PublishProxyServiceDesc describes the PublishProxy service for grpc.Server.
var PublishProxyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PublishProxyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventgateway/v1/publish_proxy.proto",
}

// RegisterPublishProxyServer registers srv on s.
func RegisterPublishProxyServer(s grpc.ServiceRegistrar, srv PublishProxyServer) {
	s.RegisterService(&PublishProxyServiceDesc, srv)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublishProxyServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: publishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublishProxyServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PublishProxyClient calls the PublishProxy service.
type PublishProxyClient struct {
	cc grpc.ClientConnInterface
}

func NewPublishProxyClient(cc grpc.ClientConnInterface) *PublishProxyClient {
	return &PublishProxyClient{cc: cc}
}

func (c *PublishProxyClient) Publish(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, publishMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
