// Package sessionpb описывает gRPC-сервис сессий botgate.session.v1.SessionService.
//
// Сообщения построены на стандартных типах protobuf: идентификатор сессии
// или личности передаётся в StringValue, контекст аутентификации
// возвращается в Struct.
package sessionpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName полное имя сервиса.
const ServiceName = "botgate.session.v1.SessionService"

const (
	ResolveSessionFullMethodName = "/" + ServiceName + "/ResolveSession"
	RotateStampFullMethodName    = "/" + ServiceName + "/RotateStamp"
)

// Поля Struct, возвращаемого ResolveSession.
const (
	FieldIdentityID = "identity_id"
	FieldRole       = "role"
	FieldTenantID   = "tenant_id"
)

// SessionServiceClient клиентский API сервиса сессий.
type SessionServiceClient interface {
	ResolveSession(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	RotateStamp(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type sessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient создаёт клиента поверх соединения.
func NewSessionServiceClient(cc grpc.ClientConnInterface) SessionServiceClient {
	return &sessionServiceClient{cc: cc}
}

func (c *sessionServiceClient) ResolveSession(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveSessionFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) RotateStamp(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, RotateStampFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionServiceServer серверный API сервиса сессий.
type SessionServiceServer interface {
	ResolveSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RotateStamp(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// UnimplementedSessionServiceServer встраивается в реализации сервера.
type UnimplementedSessionServiceServer struct{}

func (UnimplementedSessionServiceServer) ResolveSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveSession not implemented")
}

func (UnimplementedSessionServiceServer) RotateStamp(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method RotateStamp not implemented")
}

// RegisterSessionServiceServer регистрирует реализацию на сервере.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

func resolveSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).ResolveSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveSessionFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).ResolveSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func rotateStampHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).RotateStamp(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RotateStampFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).RotateStamp(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionService_ServiceDesc описание сервиса для grpc.Server.
var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveSession", Handler: resolveSessionHandler},
		{MethodName: "RotateStamp", Handler: rotateStampHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "botgate/session/v1/session.proto",
}
