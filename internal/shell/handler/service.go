package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pawsit.shell.v1.ShellService"

// ShellServiceServer is the server API for ShellService. Messages are protobuf
// well-known types so renderers need no generated stubs.
type ShellServiceServer interface {
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	OpenURL(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SendPasswordReset(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	VerifyPasswordResetCode(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	ConfirmPasswordReset(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	OpenAdminConsole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetAdmin(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SetRole(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterShellServiceServer registers srv on s.
func RegisterShellServiceServer(s grpc.ServiceRegistrar, srv ShellServiceServer) {
	s.RegisterService(&ShellServiceDesc, srv)
}

// FullMethod returns the full gRPC method name for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ShellServiceDesc is the grpc.ServiceDesc for ShellService.
var ShellServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShellServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSession", func() *emptypb.Empty { return new(emptypb.Empty) },
			func(s ShellServiceServer, ctx context.Context, r *emptypb.Empty) (proto.Message, error) { return s.GetSession(ctx, r) }),
		unary("OpenURL", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
			func(s ShellServiceServer, ctx context.Context, r *wrapperspb.StringValue) (proto.Message, error) { return s.OpenURL(ctx, r) }),
		unary("SignIn", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.SignIn(ctx, r) }),
		unary("SignUp", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.SignUp(ctx, r) }),
		unary("SignOut", func() *emptypb.Empty { return new(emptypb.Empty) },
			func(s ShellServiceServer, ctx context.Context, r *emptypb.Empty) (proto.Message, error) { return s.SignOut(ctx, r) }),
		unary("SendPasswordReset", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
			func(s ShellServiceServer, ctx context.Context, r *wrapperspb.StringValue) (proto.Message, error) { return s.SendPasswordReset(ctx, r) }),
		unary("VerifyPasswordResetCode", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
			func(s ShellServiceServer, ctx context.Context, r *wrapperspb.StringValue) (proto.Message, error) { return s.VerifyPasswordResetCode(ctx, r) }),
		unary("ConfirmPasswordReset", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.ConfirmPasswordReset(ctx, r) }),
		unary("OpenAdminConsole", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.OpenAdminConsole(ctx, r) }),
		unary("SetAdmin", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.SetAdmin(ctx, r) }),
		unary("SetRole", func() *structpb.Struct { return new(structpb.Struct) },
			func(s ShellServiceServer, ctx context.Context, r *structpb.Struct) (proto.Message, error) { return s.SetRole(ctx, r) }),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				m := new(emptypb.Empty)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(ShellServiceServer).Watch(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
			},
		},
	},
	Metadata: "pawsit/shell/v1/shell.proto",
}

// unary builds a MethodDesc the way generated code does: decode, then run the
// call through the interceptor chain if there is one.
func unary[Req proto.Message](name string, newReq func() Req, call func(ShellServiceServer, context.Context, Req) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ShellServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ShellServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
