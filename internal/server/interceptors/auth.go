package interceptors

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const bearerPrefix = "bearer "

var errUnauthenticated = status.Error(codes.Unauthenticated, "missing or invalid renderer token")

// AuthUnary returns a unary server interceptor that requires the renderer's Bearer token
// on every RPC not listed in publicMethods (e.g. the grpc health check).
// An empty token disables the check; the agent then relies on the listener being local.
func AuthUnary(token string, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !authorized(ctx, token, publicMethods[info.FullMethod]) {
			return nil, errUnauthenticated
		}
		return handler(ctx, req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(token string, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !authorized(ss.Context(), token, publicMethods[info.FullMethod]) {
			return errUnauthenticated
		}
		return handler(srv, ss)
	}
}

func authorized(ctx context.Context, token string, public bool) bool {
	if token == "" || public {
		return true
	}
	got := extractBearer(ctx)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
