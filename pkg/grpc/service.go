package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The query service speaks protobuf well-known types only, so clients need no
// generated stubs:
//
//	service HeartRateQuery {
//	  rpc Latest(google.protobuf.Empty)       returns (google.protobuf.Struct);
//	  rpc Get(google.protobuf.UInt64Value)    returns (google.protobuf.Struct);
//	  rpc List(google.protobuf.Int64Value)    returns (google.protobuf.ListValue);
//	  rpc Stats(google.protobuf.Int64Value)   returns (google.protobuf.Struct);
//	}
//
// List and Stats take the window in minutes; zero or negative means no window.
const ServiceName = "heartrate.v1.HeartRateQuery"

const (
	MethodLatest = "/" + ServiceName + "/Latest"
	MethodGet    = "/" + ServiceName + "/Get"
	MethodList   = "/" + ServiceName + "/List"
	MethodStats  = "/" + ServiceName + "/Stats"
)

type HeartRateQueryServer interface {
	Latest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Get(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	List(context.Context, *wrapperspb.Int64Value) (*structpb.ListValue, error)
	Stats(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
}

func RegisterHeartRateQueryServer(s grpc.ServiceRegistrar, srv HeartRateQueryServer) {
	s.RegisterService(&HeartRateQueryServiceDesc, srv)
}

func latestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeartRateQueryServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodLatest}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeartRateQueryServer).Latest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeartRateQueryServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGet}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeartRateQueryServer).Get(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func listHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeartRateQueryServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodList}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeartRateQueryServer).List(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeartRateQueryServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodStats}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeartRateQueryServer).Stats(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

var HeartRateQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HeartRateQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: latestHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "List", Handler: listHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type HeartRateQueryClient struct {
	cc grpc.ClientConnInterface
}

func NewHeartRateQueryClient(cc grpc.ClientConnInterface) *HeartRateQueryClient {
	return &HeartRateQueryClient{cc: cc}
}

func (c *HeartRateQueryClient) Latest(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodLatest, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HeartRateQueryClient) Get(ctx context.Context, id uint64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGet, wrapperspb.UInt64(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HeartRateQueryClient) List(ctx context.Context, minutes int64, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MethodList, wrapperspb.Int64(minutes), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HeartRateQueryClient) Stats(ctx context.Context, minutes int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStats, wrapperspb.Int64(minutes), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
