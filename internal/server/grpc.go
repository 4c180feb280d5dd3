// Package server assembles the agent's gRPC server: the shell service the renderer
// talks to, the grpc health service, and the interceptor chain in front of them.
package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pawsit/agent/internal/audit"
	"pawsit/agent/internal/server/interceptors"
	shellhandler "pawsit/agent/internal/shell/handler"
	"pawsit/agent/internal/telemetry"
)

// Deps holds the gRPC server's collaborators. Only Shell is required.
type Deps struct {
	// Shell serves pawsit.shell.v1.ShellService.
	Shell shellhandler.ShellServiceServer
	// Health is the grpc health server. If nil, the health service is not registered.
	Health *health.Server
	// RendererToken is the Bearer token the renderer must present. Empty disables the check.
	RendererToken string
	// Audit records identity-changing RPCs against Actor. If either is nil, nothing is audited.
	Audit audit.AuditLogger
	Actor interceptors.ActorFunc
	// Emitter receives one shell.rpc event per call. May be nil.
	Emitter telemetry.EventEmitter
	Log     *slog.Logger
}

var (
	healthMethods = map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
	auditedMethods = map[string]bool{
		shellhandler.FullMethod("SignIn"):               true,
		shellhandler.FullMethod("SignUp"):               true,
		shellhandler.FullMethod("SignOut"):              true,
		shellhandler.FullMethod("SendPasswordReset"):    true,
		shellhandler.FullMethod("ConfirmPasswordReset"): true,
		shellhandler.FullMethod("OpenAdminConsole"):     true,
		shellhandler.FullMethod("SetAdmin"):             true,
		shellhandler.FullMethod("SetRole"):              true,
	}
)

// NewGRPCServer returns a server with tracing, telemetry, renderer auth and audit
// interceptors installed and every service in d registered.
func NewGRPCServer(d Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(d.Log, d.Emitter, healthMethods),
			interceptors.AuthUnary(d.RendererToken, healthMethods),
			interceptors.AuditUnary(d.Audit, d.Actor, auditedMethods),
		),
		grpc.ChainStreamInterceptor(
			interceptors.TelemetryStream(d.Log, d.Emitter, healthMethods),
			interceptors.AuthStream(d.RendererToken, healthMethods),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, d)
	return s
}

// RegisterServices registers the shell service and, when configured, grpc health.
func RegisterServices(s grpc.ServiceRegistrar, d Deps) {
	if d.Shell != nil {
		shellhandler.RegisterShellServiceServer(s, d.Shell)
	}
	if d.Health != nil {
		healthpb.RegisterHealthServer(s, d.Health)
	}
}
