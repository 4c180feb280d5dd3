package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"pawsit/agent/internal/audit"
)

// ActorFunc returns the user the agent is currently signed in as, or "" when signed out.
type ActorFunc func(context.Context) string

// AuditUnary returns a unary server interceptor that records an audit entry after each RPC
// in auditMethods. The entry is attributed to the actor as of the end of the call, so a
// SignIn is recorded against the account that just signed in.
// Calls made while signed out are not recorded. Logging is best-effort via audit.AuditLogger.
func AuditUnary(logger audit.AuditLogger, actor ActorFunc, auditMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || actor == nil || !auditMethods[info.FullMethod] {
			return resp, err
		}
		userID := actor(ctx)
		if userID == "" {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, userID, ar.Action, ar.Resource, "code="+status.Code(err).String())
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
