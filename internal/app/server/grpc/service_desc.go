package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "shortener.v1.Shortener"

	ShortenMethod      = "/" + ServiceName + "/Shorten"
	ResolveMethod      = "/" + ServiceName + "/Resolve"
	ListMappingsMethod = "/" + ServiceName + "/ListMappings"
)

// ShortenerServer is the server API of shortener.v1.Shortener. Messages are
// protobuf well-known types, so no generated code is needed.
type ShortenerServer interface {
	// Shorten takes {destination, custom_code} and answers {code, short_url}.
	Shorten(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Resolve takes a code and answers its destination.
	Resolve(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// ListMappings answers {items: [...]} with the caller's mappings.
	ListMappings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func unaryHandler[Req any, Resp any](
	newReq func() *Req,
	method string,
	call func(ShortenerServer, context.Context, *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ShortenerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ShortenerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ShortenerServiceDesc describes shortener.v1.Shortener for grpc.Server.RegisterService.
var ShortenerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShortenerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Shorten",
			Handler: unaryHandler(func() *structpb.Struct { return new(structpb.Struct) }, ShortenMethod,
				func(s ShortenerServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
					return s.Shorten(ctx, in)
				}),
		},
		{
			MethodName: "Resolve",
			Handler: unaryHandler(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, ResolveMethod,
				func(s ShortenerServer, ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
					return s.Resolve(ctx, in)
				}),
		},
		{
			MethodName: "ListMappings",
			Handler: unaryHandler(func() *emptypb.Empty { return new(emptypb.Empty) }, ListMappingsMethod,
				func(s ShortenerServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
					return s.ListMappings(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shortener/v1/shortener.proto",
}
